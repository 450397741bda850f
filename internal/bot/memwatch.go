package bot

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

const (
	memWarnThresholdBytes  = 600 * 1024 * 1024
	memCritThresholdBytes  = 1200 * 1024 * 1024
	memCheckInterval       = 30 * time.Second
	goroutineWarnThreshold = 500
	goroutineCritThreshold = 1000
	memWarnCooldown        = 10 * time.Minute
)

type memLevel int

const (
	memOK memLevel = iota
	memWarn
	memCritical
)

type memSnapshot struct {
	HeapBytes  uint64
	HeapMB     uint64
	SysMB      uint64
	Goroutines int
}

func readMemSnapshot() memSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return memSnapshot{
		HeapBytes:  ms.HeapAlloc,
		HeapMB:     ms.HeapAlloc / (1024 * 1024),
		SysMB:      ms.Sys / (1024 * 1024),
		Goroutines: runtime.NumGoroutine(),
	}
}

func (s memSnapshot) level() memLevel {
	switch {
	case s.Goroutines >= goroutineCritThreshold, s.HeapBytes >= memCritThresholdBytes:
		return memCritical
	case s.Goroutines >= goroutineWarnThreshold, s.HeapBytes > memWarnThresholdBytes:
		return memWarn
	}
	return memOK
}

// runMemoryWatcher warns the posts chat about heap or goroutine growth and
// shuts the process down when a critical threshold is crossed.
func (b *TelegramBot) runMemoryWatcher(ctx context.Context) {
	ticker := time.NewTicker(memCheckInterval)
	defer ticker.Stop()

	var lastWarnAt time.Time

	b.log.Infof("memwatch: started (warn=%dMB, crit=%dMB, goroutines warn=%d crit=%d)",
		memWarnThresholdBytes/(1024*1024),
		memCritThresholdBytes/(1024*1024),
		goroutineWarnThreshold,
		goroutineCritThreshold,
	)

	for {
		select {
		case <-ctx.Done():
			b.log.Infof("memwatch: stopped")
			return
		case <-ticker.C:
			b.checkMemory(readMemSnapshot(), &lastWarnAt)
		}
	}
}

func (b *TelegramBot) checkMemory(s memSnapshot, lastWarnAt *time.Time) {
	switch s.level() {
	case memCritical:
		msg := fmt.Sprintf(
			"🚨 Resource leak, emergency shutdown!\nHeap: %d MB (limit %d MB)\nSys: %d MB\nGoroutines: %d (limit %d)",
			s.HeapMB, memCritThresholdBytes/(1024*1024), s.SysMB, s.Goroutines, goroutineCritThreshold,
		)
		b.log.Errorf("memwatch: CRITICAL heap=%dMB goroutines=%d", s.HeapMB, s.Goroutines)
		b.sendMemAlert(msg, true)
	case memWarn:
		if time.Since(*lastWarnAt) <= memWarnCooldown {
			return
		}
		msg := fmt.Sprintf(
			"⚠️ High resource usage\nHeap: %d MB (warn at %d MB)\nSys: %d MB\nGoroutines: %d (warn at %d)",
			s.HeapMB, memWarnThresholdBytes/(1024*1024), s.SysMB, s.Goroutines, goroutineWarnThreshold,
		)
		b.log.Warnf("memwatch: WARNING heap=%dMB goroutines=%d", s.HeapMB, s.Goroutines)
		b.sendMemAlert(msg, false)
		runtime.GC()
		*lastWarnAt = time.Now()
	}
}

func (b *TelegramBot) sendMemAlert(msg string, emergency bool) {
	chatID := b.svc.Config().PostsChatID
	if chatID != 0 {
		b.replyText(chatID, msg)
		if emergency {
			// give the alert a moment to go out before shutting down
			time.Sleep(3 * time.Second)
		}
	} else {
		b.log.Warnf("memwatch: PostsChatID=0, alert not delivered: %s", msg)
	}

	if emergency && b.cancelFunc != nil {
		b.log.Errorf("memwatch: initiating emergency shutdown")
		b.cancelFunc()
	}
}
