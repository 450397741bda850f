package scheduler

import (
	"context"
	"math/rand/v2"
	"time"

	"shorts-gen/internal/s3"
)

// Location is the zone the posting window is defined in (UTC+7).
var Location = time.FixedZone("Asia/Tomsk", 7*3600)

// ScheduleEntry is a single planned generation.
type ScheduleEntry struct {
	Time  time.Time `json:"time"`
	Fired bool      `json:"fired,omitempty"`
}

// DailySchedule holds the plan for a single day
type DailySchedule struct {
	Date      string          `json:"date"` // YYYY-MM-DD
	Entries   []ScheduleEntry `json:"entries"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BuildDailySchedule creates count evenly distributed times within the window
// [10:00, 24:00) with random jitter to avoid clustering. rnd may be nil.
func BuildDailySchedule(date time.Time, count int, rnd *rand.Rand) []time.Time {
	if count <= 0 {
		return nil
	}
	date = date.In(Location)
	start := time.Date(date.Year(), date.Month(), date.Day(), 10, 0, 0, 0, Location)
	end := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 0, Location)

	totalSeconds := int(end.Sub(start).Seconds())
	if count == 1 {
		return []time.Time{start.Add(time.Duration(totalSeconds/2) * time.Second)}
	}

	intn := rand.IntN
	if rnd != nil {
		intn = rnd.IntN
	}

	segmentSeconds := float64(totalSeconds) / float64(count)
	jitterMax := min(int(segmentSeconds/3), 1800)

	times := make([]time.Time, 0, count)
	for i := range count {
		center := (float64(i) + 0.5) * segmentSeconds
		jitter := 0
		if jitterMax > 0 {
			jitter = intn(2*jitterMax+1) - jitterMax
		}
		t := start.Add(time.Duration(int(center)+jitter) * time.Second)
		if t.Before(start) {
			t = start
		}
		if t.After(end) {
			t = end
		}
		times = append(times, t)
	}
	return times
}

// NewDailySchedule plans count generations for the day containing now.
func NewDailySchedule(now time.Time, count int, rnd *rand.Rand) *DailySchedule {
	times := BuildDailySchedule(now, count, rnd)
	entries := make([]ScheduleEntry, len(times))
	for i, t := range times {
		entries[i] = ScheduleEntry{Time: t}
	}
	return &DailySchedule{Date: dayKey(now), Entries: entries, UpdatedAt: now}
}

func dayKey(t time.Time) string {
	return t.In(Location).Format("2006-01-02")
}

func SaveSchedule(ctx context.Context, client s3.Client, key string, schedule *DailySchedule) error {
	return client.WriteJSON(ctx, key, schedule)
}

// LoadSchedule returns nil without error when nothing is stored yet.
func LoadSchedule(ctx context.Context, client s3.Client, key string) (*DailySchedule, error) {
	var schedule DailySchedule
	found, err := client.ReadJSON(ctx, key, &schedule)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &schedule, nil
}

// GetOrCreateSchedule returns today's schedule, creating and storing a new
// one when the stored plan is for another day or another count.
func GetOrCreateSchedule(ctx context.Context, client s3.Client, key string, count int, now time.Time) (*DailySchedule, error) {
	schedule, err := LoadSchedule(ctx, client, key)
	if err == nil && schedule != nil && schedule.Date == dayKey(now) && len(schedule.Entries) == count {
		return schedule, nil
	}

	schedule = NewDailySchedule(now, count, nil)
	// not fatal, the plan still lives in memory
	_ = SaveSchedule(ctx, client, key, schedule)
	return schedule, nil
}

// DueEntries marks entries whose time has come as fired and returns how many
// should run now. Entries more than grace in the past are marked fired
// without running so a restart does not burst through a missed backlog.
func DueEntries(schedule *DailySchedule, now time.Time, grace time.Duration) (due, missed int) {
	if schedule == nil {
		return 0, 0
	}
	for i := range schedule.Entries {
		e := &schedule.Entries[i]
		if e.Fired || e.Time.After(now) {
			continue
		}
		e.Fired = true
		if now.Sub(e.Time) > grace {
			missed++
			continue
		}
		due++
	}
	if due > 0 || missed > 0 {
		schedule.UpdatedAt = now
	}
	return due, missed
}

// GetNextScheduledTime returns the next scheduled time after now.
func GetNextScheduledTime(schedule *DailySchedule, now time.Time) *time.Time {
	if schedule == nil {
		return nil
	}
	for _, entry := range schedule.Entries {
		if entry.Time.After(now) {
			t := entry.Time
			return &t
		}
	}
	return nil
}
