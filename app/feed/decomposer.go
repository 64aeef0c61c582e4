package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotTripUpdate = errors.New("entity carries no trip update payload")
	ErrNotAlert      = errors.New("entity carries no alert payload")
	ErrMissingTripID = errors.New("trip update without trip id")
	ErrMissingID     = errors.New("entity without id")
)

const unknownText = "unknown"

// DecomposeTripUpdate flattens one trip-update entity into a trip_updates
// row and its ordered stop_time_updates rows. fallback supplies the feed
// timestamp when the payload carries none (typically the ingestion time of
// the message). Pure function, no I/O.
func DecomposeTripUpdate(e Entity, fallback time.Time) (TripUpdateRecord, []StopTimeUpdateRecord, error) {
	if e.TripUpdate == nil {
		return TripUpdateRecord{}, nil, ErrNotTripUpdate
	}

	// SNCF feeds repeat the trip id as the entity id; prefer the trip
	// descriptor when it is populated.
	tripID := e.TripUpdate.Trip.TripID
	if tripID == "" {
		tripID = e.ID
	}
	if tripID == "" {
		return TripUpdateRecord{}, nil, ErrMissingTripID
	}

	feedTS := fallback
	if ts := e.TripUpdate.Timestamp; ts != nil {
		feedTS = time.Unix(*ts, 0).UTC()
	}

	trip := TripUpdateRecord{
		FeedTimestamp: feedTS,
		TripID:        tripID,
		StartTime:     normalizeStartTime(e.TripUpdate.Trip.StartTime),
		StartDate:     normalizeStartDate(e.TripUpdate.Trip.StartDate),
	}

	var stops []StopTimeUpdateRecord
	stopIndex := 0
	for _, ev := range e.TripUpdate.StopTimeUpdates {
		// Events without a stop id are dropped and do not consume an index.
		if ev.StopID == "" {
			continue
		}

		arrivalTime, arrivalDelay, departureTime, departureDelay := resolveStopTimes(ev)

		stops = append(stops, StopTimeUpdateRecord{
			FeedTimestamp:  feedTS,
			TripID:         tripID,
			StopIndex:      stopIndex,
			StopID:         ev.StopID,
			ArrivalTime:    arrivalTime,
			DepartureTime:  departureTime,
			ArrivalDelay:   arrivalDelay,
			DepartureDelay: departureDelay,
		})
		stopIndex++
	}

	return trip, stops, nil
}

// resolveStopTimes applies the two-way arrival/departure fallback: a side
// missing from the source event inherits the other side's values, so an
// event with only one side populated yields identical columns on both.
// When both sides are absent every field stays nil.
func resolveStopTimes(ev StopTimeEvent) (arrivalTime *time.Time, arrivalDelay *int64, departureTime *time.Time, departureDelay *int64) {
	if ev.Departure != nil {
		departureTime = unixToTime(ev.Departure.Time)
		departureDelay = ev.Departure.Delay
	}

	if ev.Arrival != nil {
		arrivalTime = unixToTime(ev.Arrival.Time)
		arrivalDelay = ev.Arrival.Delay
	} else if ev.Departure != nil {
		arrivalTime = departureTime
		if departureDelay != nil {
			arrivalDelay = departureDelay
		} else {
			zero := int64(0)
			arrivalDelay = &zero
		}
	}

	if departureTime == nil {
		departureTime = arrivalTime
	}
	if departureDelay == nil {
		departureDelay = arrivalDelay
	}

	return arrivalTime, arrivalDelay, departureTime, departureDelay
}

// DecomposeAlert flattens one alert entity into an alerts row and its
// alert_entities rows. Pure function, no I/O.
func DecomposeAlert(e Entity) (AlertRecord, []AlertEntityRecord, error) {
	if e.Alert == nil {
		return AlertRecord{}, nil, ErrNotAlert
	}
	if e.ID == "" {
		return AlertRecord{}, nil, ErrMissingID
	}

	record := AlertRecord{
		AlertID:       e.ID,
		Cause:         orUnknown(e.Alert.Cause),
		Severity:      orUnknown(e.Alert.Severity),
		HeaderEN:      unknownText,
		HeaderFR:      unknownText,
		DescriptionEN: unknownText,
		DescriptionFR: unknownText,
	}

	// Only the first active period is kept. Both bounds stay NULL when the
	// list is empty.
	if len(e.Alert.ActivePeriods) > 0 {
		record.ActivePeriodStart = unixToTime(e.Alert.ActivePeriods[0].Start)
		record.ActivePeriodEnd = unixToTime(e.Alert.ActivePeriods[0].End)
	}

	if e.Alert.HeaderText != nil {
		applyTranslations(e.Alert.HeaderText.Translations, &record.HeaderEN, &record.HeaderFR)
	}
	if e.Alert.DescriptionText != nil {
		applyTranslations(e.Alert.DescriptionText.Translations, &record.DescriptionEN, &record.DescriptionFR)
	}

	var entities []AlertEntityRecord
	for _, informed := range e.Alert.InformedEntities {
		// Route and stop level selectors are not modeled.
		if informed.Trip == nil || informed.Trip.TripID == "" {
			continue
		}
		entities = append(entities, AlertEntityRecord{
			TripID:  informed.Trip.TripID,
			AlertID: e.ID,
		})
	}

	return record, entities, nil
}

// applyTranslations extracts the en and fr texts. A repeated language wins
// with its last occurrence; other languages are ignored.
func applyTranslations(translations []Translation, en, fr *string) {
	for _, tr := range translations {
		switch tr.Language {
		case "en":
			*en = orUnknown(tr.Text)
		case "fr":
			*fr = orUnknown(tr.Text)
		}
	}
}

// DecomposeTripUpdates decomposes a whole batch, skipping malformed
// entities so one bad message never aborts the cycle. Returns the records
// plus the number of entities skipped.
func DecomposeTripUpdates(entities []Entity, fallback time.Time) ([]TripUpdateRecord, []StopTimeUpdateRecord, int) {
	var trips []TripUpdateRecord
	var stops []StopTimeUpdateRecord
	skipped := 0

	for _, e := range entities {
		trip, stopRecords, err := DecomposeTripUpdate(e, fallback)
		if err != nil {
			slog.Warn("Skipping malformed trip update entity", "id", e.ID, "error", err)
			skipped++
			continue
		}
		trips = append(trips, trip)
		stops = append(stops, stopRecords...)
	}

	return trips, stops, skipped
}

// DecomposeAlerts is the alert-family counterpart of DecomposeTripUpdates.
func DecomposeAlerts(entities []Entity) ([]AlertRecord, []AlertEntityRecord, int) {
	var alerts []AlertRecord
	var alertEntities []AlertEntityRecord
	skipped := 0

	for _, e := range entities {
		alert, records, err := DecomposeAlert(e)
		if err != nil {
			slog.Warn("Skipping malformed alert entity", "id", e.ID, "error", err)
			skipped++
			continue
		}
		alerts = append(alerts, alert)
		alertEntities = append(alertEntities, records...)
	}

	return alerts, alertEntities, skipped
}

// normalizeStartTime keeps HH:MM:SS strings as-is and converts raw unix
// second values to UTC HH:MM:SS. Empty input maps to NULL.
func normalizeStartTime(s string) *string {
	if s == "" {
		return nil
	}
	if strings.Contains(s, ":") {
		return &s
	}
	unix, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return &s
	}
	formatted := time.Unix(unix, 0).UTC().Format("15:04:05")
	return &formatted
}

// normalizeStartDate keeps YYYY-MM-DD strings as-is and converts the GTFS
// YYYYMMDD form. Empty input maps to NULL.
func normalizeStartDate(s string) *string {
	if s == "" {
		return nil
	}
	if strings.Contains(s, "-") {
		return &s
	}
	if len(s) == 8 {
		formatted := fmt.Sprintf("%s-%s-%s", s[:4], s[4:6], s[6:8])
		return &formatted
	}
	return &s
}

func unixToTime(unix *int64) *time.Time {
	if unix == nil {
		return nil
	}
	t := time.Unix(*unix, 0).UTC()
	return &t
}

func orUnknown(s string) string {
	if s == "" {
		return unknownText
	}
	return s
}
