package pipeline

import "time"

// Clock returns the current time. Swapped in tests.
type Clock func() time.Time

// Record appends a timeline event stamped with now.
func (s *State) Record(now time.Time, event, detail, status string) {
	s.Timeline = append(s.Timeline, TimelineEvent{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Event:     event,
		Detail:    detail,
		Status:    status,
	})
}

// LastEvent returns the most recent timeline event, or false if the log is empty.
func (s *State) LastEvent() (TimelineEvent, bool) {
	if len(s.Timeline) == 0 {
		return TimelineEvent{}, false
	}
	return s.Timeline[len(s.Timeline)-1], true
}
