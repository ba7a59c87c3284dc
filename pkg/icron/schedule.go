package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerInfo places a reference time between two firings of a schedule.
type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// lookback bounds the search for the previous firing.
const lookback = 366 * 24 * time.Hour

// GetTriggerInfo reports the firings around refTime for a standard five
// field expression (the format cron.Cron.AddFunc accepts). Last is zero
// when the schedule did not fire within the lookback window.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       previous(schedule, refTime),
	}
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	info.TimeUntilNext = info.Next.Sub(refTime)
	return info, nil
}

// previous finds the latest firing at or before refTime. It widens the
// window until one firing falls inside, then walks forward to the last one.
func previous(schedule cron.Schedule, refTime time.Time) time.Time {
	for window := time.Hour; window <= lookback; window *= 2 {
		t := schedule.Next(refTime.Add(-window))
		if t.After(refTime) {
			continue
		}
		for {
			n := schedule.Next(t)
			if n.After(refTime) || n.IsZero() {
				return t
			}
			t = n
		}
	}
	return time.Time{}
}
