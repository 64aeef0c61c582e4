package database

import (
	"github.com/railwatch/gtfs-rt-pipeline/app/feed"
)

// Converters from decomposed records to write batches. Column order here
// matches the schema; key columns match the table's primary key.

func TripUpdateBatch(records []feed.TripUpdateRecord) Batch {
	b := Batch{
		Table:   "trip_updates",
		KeyCols: []string{"trip_id"},
		Columns: []string{"feed_timestamp", "trip_id", "start_time", "start_date"},
	}
	for _, r := range records {
		b.Rows = append(b.Rows, []any{r.FeedTimestamp, r.TripID, r.StartTime, r.StartDate})
	}
	return b
}

func StopTimeUpdateBatch(records []feed.StopTimeUpdateRecord) Batch {
	b := Batch{
		Table:   "stop_time_updates",
		KeyCols: []string{"trip_id", "stop_index"},
		Columns: []string{"feed_timestamp", "trip_id", "stop_index", "stop_id",
			"arrival_time", "departure_time", "arrival_delay", "departure_delay"},
	}
	for _, r := range records {
		b.Rows = append(b.Rows, []any{r.FeedTimestamp, r.TripID, r.StopIndex, r.StopID,
			r.ArrivalTime, r.DepartureTime, r.ArrivalDelay, r.DepartureDelay})
	}
	return b
}

func AlertBatch(records []feed.AlertRecord) Batch {
	b := Batch{
		Table:   "alerts",
		KeyCols: []string{"alert_id"},
		Columns: []string{"alert_id", "active_period_start", "active_period_end",
			"cause", "severity", "header_en", "header_fr", "description_en", "description_fr"},
	}
	for _, r := range records {
		b.Rows = append(b.Rows, []any{r.AlertID, r.ActivePeriodStart, r.ActivePeriodEnd,
			r.Cause, r.Severity, r.HeaderEN, r.HeaderFR, r.DescriptionEN, r.DescriptionFR})
	}
	return b
}

// AlertEntityBatch has no key columns: the table declares no unique key
// and duplicate links across cycles are accepted.
func AlertEntityBatch(records []feed.AlertEntityRecord) Batch {
	b := Batch{
		Table:   "alert_entities",
		Columns: []string{"trip_id", "alert_id"},
	}
	for _, r := range records {
		b.Rows = append(b.Rows, []any{r.TripID, r.AlertID})
	}
	return b
}
