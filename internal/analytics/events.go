package analytics

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/kafka"
)

type EventType string

const (
	EventSearch EventType = "search"
	EventBuild  EventType = "build"
)

// Event is the envelope published to the analytics topic. Exactly one of
// Search or Build is set, matching Type.
type Event struct {
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	RequestID string       `json:"request_id,omitempty"`
	Search    *SearchEvent `json:"search,omitempty"`
	Build     *BuildEvent  `json:"build,omitempty"`
}

// SearchEvent describes one answered query.
type SearchEvent struct {
	Query      string   `json:"query"`
	Tokens     []string `json:"tokens"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalCount int      `json:"total_count"`
	Returned   int      `json:"returned"`
	LatencyMs  float64  `json:"latency_ms"`
	CacheHit   bool     `json:"cache_hit"`
	TimedOut   bool     `json:"timed_out"`
	BuildID    string   `json:"build_id"`
}

// BuildEvent describes one completed index build.
type BuildEvent struct {
	BuildID        string  `json:"build_id"`
	TotalDocs      int     `json:"total_docs"`
	VocabularySize int     `json:"vocabulary_size"`
	PostingCount   int     `json:"posting_count"`
	NumBarrels     int     `json:"num_barrels"`
	DurationMs     float64 `json:"duration_ms"`
}

func NewSearchEvent(e SearchEvent, requestID string) Event {
	return Event{Type: EventSearch, Timestamp: time.Now().UTC(), RequestID: requestID, Search: &e}
}

func NewBuildEvent(e BuildEvent) Event {
	return Event{Type: EventBuild, Timestamp: time.Now().UTC(), Build: &e}
}

// Key is the partition key: queries hash by text so one query's events stay
// ordered, builds by build ID.
func (e Event) Key() string {
	switch {
	case e.Search != nil:
		return e.Search.Query
	case e.Build != nil:
		return e.Build.BuildID
	}
	return string(e.Type)
}

// DecodeEvent parses an envelope and checks its payload matches its type.
func DecodeEvent(data []byte) (Event, error) {
	e, err := kafka.DecodeJSON[Event](data)
	if err != nil {
		return e, err
	}
	switch {
	case e.Type == EventSearch && e.Search != nil:
	case e.Type == EventBuild && e.Build != nil:
	default:
		return e, fmt.Errorf("analytics event of type %q has no matching payload", e.Type)
	}
	return e, nil
}

// Tracker accepts events without blocking the caller.
type Tracker interface {
	Track(e Event)
}

type tee []Tracker

func (t tee) Track(e Event) {
	for _, tr := range t {
		tr.Track(e)
	}
}

// Tee forwards every event to each non-nil tracker.
func Tee(trackers ...Tracker) Tracker {
	var out tee
	for _, tr := range trackers {
		if tr != nil {
			out = append(out, tr)
		}
	}
	return out
}
