package openf1

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// LatestSession is the session_key value OpenF1 resolves to the current or
// most recent session.
const LatestSession = "latest"

// RadioRecord is a single team radio clip as returned by the team_radio
// endpoint. Records are treated as immutable once fetched.
type RadioRecord struct {
	SessionKey   int    `json:"session_key"`
	MeetingKey   int    `json:"meeting_key"`
	DriverNumber int    `json:"driver_number"`
	Date         string `json:"date"`
	RecordingURL string `json:"recording_url"`
}

// ID returns the deduplication identifier for the clip. The recording URL is
// unique per clip; records without one fall back to a session/driver/date key.
func (r RadioRecord) ID() string {
	if r.RecordingURL != "" {
		return r.RecordingURL
	}
	return fmt.Sprintf("%d_%d_%s", r.SessionKey, r.DriverNumber, r.Date)
}

// Time parses Date. OpenF1 emits RFC 3339 timestamps with microsecond
// precision and either a "Z" or "+00:00" offset.
func (r RadioRecord) Time() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, r.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Query selects which clips to fetch. An empty SessionKey means
// [LatestSession]; a zero DriverNumber means all drivers.
type Query struct {
	SessionKey   string
	DriverNumber int
}

// session returns the effective session key.
func (q Query) session() string {
	if q.SessionKey == "" {
		return LatestSession
	}
	return q.SessionKey
}

// compareByDate orders records chronologically. Unparseable dates are
// compared as raw strings, which still sorts ISO timestamps correctly.
func compareByDate(a, b RadioRecord) int {
	ta, okA := a.Time()
	tb, okB := b.Time()
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a.Date, b.Date)
}

// SortOldestFirst returns a chronologically sorted copy of records.
func SortOldestFirst(records []RadioRecord) []RadioRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, compareByDate)
	return out
}

// SortNewestFirst returns a reverse-chronologically sorted copy of records.
func SortNewestFirst(records []RadioRecord) []RadioRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b RadioRecord) int {
		return compareByDate(b, a)
	})
	return out
}
