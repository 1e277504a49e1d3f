package domain

import "time"

// DeliveryOutcome summarizes one pipeline run.
type DeliveryOutcome struct {
	Attempted int
	Delivered int
	// FailureReason is set only when nothing was attempted.
	FailureReason string

	ContentID string
	Kind      ContentKind
	Strategy  string
	Duration  time.Duration
}

// Failed reports whether the request ended before any asset was attempted.
func (o DeliveryOutcome) Failed() bool {
	return o.FailureReason != ""
}

// Succeeded reports whether at least one file reached the destination.
func (o DeliveryOutcome) Succeeded() bool {
	return o.Delivered > 0
}

// Partial reports whether some but not all attempted files were delivered.
func (o DeliveryOutcome) Partial() bool {
	return o.Delivered > 0 && o.Delivered < o.Attempted
}

// NewFailedOutcome builds an outcome for a request-fatal error.
func NewFailedOutcome(req ContentRequest, reason string) DeliveryOutcome {
	return DeliveryOutcome{
		FailureReason: reason,
		ContentID:     req.ContentID,
		Kind:          req.Kind,
	}
}
