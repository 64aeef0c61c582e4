package feed

import "time"

// Relational records produced by the decomposer. Nullable columns are
// pointers so the writer can bind SQL NULL directly.

// TripUpdateRecord is one row of trip_updates. One per trip-update entity.
type TripUpdateRecord struct {
	FeedTimestamp time.Time
	TripID        string
	StartTime     *string
	StartDate     *string
}

// StopTimeUpdateRecord is one row of stop_time_updates. StopIndex is the
// zero-based position of the stop within the trip's retained stop sequence.
type StopTimeUpdateRecord struct {
	FeedTimestamp  time.Time
	TripID         string
	StopIndex      int
	StopID         string
	ArrivalTime    *time.Time
	DepartureTime  *time.Time
	ArrivalDelay   *int64
	DepartureDelay *int64
}

// AlertRecord is one row of alerts. Textual fields default to "unknown"
// when the feed carries no value; the active period bounds stay NULL
// instead, since they are temporal columns.
type AlertRecord struct {
	AlertID           string
	ActivePeriodStart *time.Time
	ActivePeriodEnd   *time.Time
	Cause             string
	Severity          string
	HeaderEN          string
	HeaderFR          string
	DescriptionEN     string
	DescriptionFR     string
}

// AlertEntityRecord links an alert to one trip it informs. One per
// informed entity carrying a trip id.
type AlertEntityRecord struct {
	TripID  string
	AlertID string
}
