package domain

import "time"

// HistoryEntry is one finished pipeline run as stored in the outcome history.
type HistoryEntry struct {
	ID            string
	RawURL        string
	Destination   string
	ContentID     string
	Kind          ContentKind
	Strategy      string
	Attempted     int
	Delivered     int
	FailureReason string
	Duration      time.Duration
	CreatedAt     time.Time
}

// NewHistoryEntry builds an entry from an outcome.
func NewHistoryEntry(id, rawURL, dest string, o DeliveryOutcome, at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:            id,
		RawURL:        rawURL,
		Destination:   dest,
		ContentID:     o.ContentID,
		Kind:          o.Kind,
		Strategy:      o.Strategy,
		Attempted:     o.Attempted,
		Delivered:     o.Delivered,
		FailureReason: o.FailureReason,
		Duration:      o.Duration,
		CreatedAt:     at,
	}
}

// HistoryStats aggregates the outcome history.
type HistoryStats struct {
	Requests       int            `json:"requests"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	FilesAttempted int            `json:"files_attempted"`
	FilesDelivered int            `json:"files_delivered"`
	ByStrategy     map[string]int `json:"by_strategy"`
}
