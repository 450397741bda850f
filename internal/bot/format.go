package bot

import (
	"fmt"
	"strings"
	"time"

	"shorts-gen/internal/model"
	"shorts-gen/internal/scheduler"
)

// Telegram rejects messages longer than 4096 characters.
const maxMessageRunes = 4000

func formatSchedule(sched *scheduler.DailySchedule, now time.Time) string {
	if sched == nil {
		return "📅 Schedule is not loaded yet. Try again later."
	}
	lines := []string{
		fmt.Sprintf("📅 Schedule for %s", sched.Date),
		fmt.Sprintf("Generations: %d", len(sched.Entries)),
		"",
	}
	for i, entry := range sched.Entries {
		status := "⏳ pending"
		switch {
		case entry.Fired:
			status = "✅ started"
		case !entry.Time.After(now):
			status = "⌛ due"
		}
		lines = append(lines, fmt.Sprintf("%d. %s %s", i+1, entry.Time.In(scheduler.Location).Format("15:04:05"), status))
	}
	if next := scheduler.GetNextScheduledTime(sched, now); next != nil {
		lines = append(lines, "", fmt.Sprintf("Next in %s", next.Sub(now).Round(time.Minute)))
	}
	return strings.Join(lines, "\n")
}

// formatVideos lists at most limit videos, newest first as given.
func formatVideos(videos []model.Video, limit int) string {
	if len(videos) == 0 {
		return "🎥 No videos staged yet"
	}
	lines := []string{fmt.Sprintf("🎥 %d staged videos", len(videos))}
	for i, v := range videos {
		if i == limit {
			lines = append(lines, fmt.Sprintf("…and %d more", len(videos)-limit))
			break
		}
		title := truncateRunes(v.Title, 40)
		if title == "" {
			title = v.Topic
		}
		lines = append(lines, fmt.Sprintf("• %s | %s | %.0fs | %s", v.ID, title, v.DurationS, v.CreatedAt.In(scheduler.Location).Format("01-02 15:04")))
	}
	return strings.Join(lines, "\n")
}

func formatStatus(st scheduler.Status, queueLen int64, mem memSnapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString("📊 Status\n\n")
	if st.Current != nil {
		fmt.Fprintf(&b, "⚙️ Working on %q for %s\n", st.Current.Topic, now.Sub(st.StartedAt).Round(time.Second))
	} else {
		b.WriteString("💤 Worker idle\n")
	}
	if queueLen >= 0 {
		fmt.Fprintf(&b, "📥 Queue: %d\n", queueLen)
	} else {
		b.WriteString("📥 Queue: unavailable\n")
	}
	fmt.Fprintf(&b, "✅ Done: %d, ❌ failed: %d\n", st.Processed, st.Failed)
	if st.LastVideo != nil {
		fmt.Fprintf(&b, "Last video: %s (%s)\n", st.LastVideo.ID, truncateRunes(st.LastVideo.Title, 40))
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", truncateRunes(st.LastError, 200))
	}
	fmt.Fprintf(&b, "🧠 Heap %d MB, sys %d MB, goroutines %d", mem.HeapMB, mem.SysMB, mem.Goroutines)
	return b.String()
}

func formatHours(d time.Duration) string {
	if d <= 0 {
		return "a while"
	}
	if h := d.Hours(); h == float64(int(h)) {
		return fmt.Sprintf("%dh", int(h))
	}
	return d.Round(time.Minute).String()
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return string(r[:limit])
	}
	return string(r[:limit-1]) + "…"
}

func truncateMessage(s string) string {
	return truncateRunes(s, maxMessageRunes)
}
