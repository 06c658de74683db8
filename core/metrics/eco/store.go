package eco

import "time"

// Store persists daily emission records.
type Store interface {
	Add(Record) error
	Query(fleet string, start, end time.Time) ([]Record, error)
}

// Day aligns t to the start of its day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
