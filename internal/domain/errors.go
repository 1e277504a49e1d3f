package domain

import (
	"errors"
	"strconv"
)

// Domain errors.
var (
	// ErrClassification is returned when no content identifier can be extracted from a URL.
	ErrClassification = errors.New("could not extract Instagram post ID")

	// ErrLocatorExhausted is returned when every strategy came back empty.
	ErrLocatorExhausted = errors.New("could not find any media in this post")

	// ErrStrategySoftFailure marks a strategy that found nothing or failed to parse.
	// It is logged and never surfaced to the requester.
	ErrStrategySoftFailure = errors.New("strategy produced no media")

	// ErrFetchFailed is returned when a single asset download fails.
	ErrFetchFailed = errors.New("media download failed")

	// ErrURLExpired is returned when the CDN refuses a signed media URL.
	ErrURLExpired = errors.New("media URL has expired")

	// ErrRateLimited is returned when rate limited by the upstream site.
	ErrRateLimited = errors.New("rate limited")

	// ErrSizeRejected is returned when a file exceeds the transport ceiling.
	ErrSizeRejected = errors.New("file exceeds transport size limit")

	// ErrDeliveryFailed is returned when the delivery channel rejects a send.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrToolUnavailable is returned when the media tool binary is not installed.
	ErrToolUnavailable = errors.New("media tool not installed")

	// ErrToolFailed is returned when the media tool exits with an error.
	ErrToolFailed = errors.New("media tool failed")

	// ErrToolTimeout is returned when the media tool exceeds its time budget.
	ErrToolTimeout = errors.New("media tool timed out")

	// ErrNoDestination is returned when a request has no delivery destination.
	ErrNoDestination = errors.New("no delivery destination")
)

// AssetError wraps an error with asset context.
type AssetError struct {
	ContentID string
	Ordinal   int
	Op        string
	Err       error
}

func (e *AssetError) Error() string {
	if e.ContentID != "" {
		return e.Op + " [" + e.ContentID + "#" + strconv.Itoa(e.Ordinal) + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// NewAssetError creates a new AssetError.
func NewAssetError(contentID string, ordinal int, op string, err error) *AssetError {
	return &AssetError{
		ContentID: contentID,
		Ordinal:   ordinal,
		Op:        op,
		Err:       err,
	}
}
