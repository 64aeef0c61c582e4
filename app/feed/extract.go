package feed

import (
	"log/slog"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// FromProto converts a decoded GTFS-realtime feed message into wire
// entities. Entities carrying neither a trip update nor an alert are
// dropped; everything else is converted verbatim, with proto optionals
// mapped to pointer fields.
func FromProto(msg *gtfsproto.FeedMessage) []Entity {
	var entities []Entity

	for _, pe := range msg.GetEntity() {
		entity := Entity{ID: pe.GetId()}

		switch {
		case pe.TripUpdate != nil:
			entity.TripUpdate = tripUpdateFromProto(pe.TripUpdate)
		case pe.Alert != nil:
			entity.Alert = alertFromProto(pe.Alert)
		default:
			slog.Debug("Dropping feed entity with unsupported payload", "id", pe.GetId())
			continue
		}

		entities = append(entities, entity)
	}

	return entities
}

func tripUpdateFromProto(tu *gtfsproto.TripUpdate) *TripUpdatePayload {
	payload := &TripUpdatePayload{
		Trip: TripDescriptor{
			TripID:    tu.GetTrip().GetTripId(),
			StartTime: tu.GetTrip().GetStartTime(),
			StartDate: tu.GetTrip().GetStartDate(),
		},
	}

	if tu.Timestamp != nil {
		ts := int64(tu.GetTimestamp())
		payload.Timestamp = &ts
	}

	for _, stu := range tu.GetStopTimeUpdate() {
		event := StopTimeEvent{StopID: stu.GetStopId()}
		if stu.Arrival != nil {
			event.Arrival = timeDelayFromProto(stu.Arrival)
		}
		if stu.Departure != nil {
			event.Departure = timeDelayFromProto(stu.Departure)
		}
		payload.StopTimeUpdates = append(payload.StopTimeUpdates, event)
	}

	return payload
}

func timeDelayFromProto(ev *gtfsproto.TripUpdate_StopTimeEvent) *TimeDelay {
	td := &TimeDelay{}
	if ev.Time != nil {
		t := ev.GetTime()
		td.Time = &t
	}
	if ev.Delay != nil {
		d := int64(ev.GetDelay())
		td.Delay = &d
	}
	return td
}

func alertFromProto(a *gtfsproto.Alert) *AlertPayload {
	payload := &AlertPayload{}

	if a.Cause != nil {
		payload.Cause = a.GetCause().String()
	}
	if a.SeverityLevel != nil {
		payload.Severity = a.GetSeverityLevel().String()
	}

	for _, period := range a.GetActivePeriod() {
		ap := ActivePeriod{}
		if period.Start != nil {
			start := int64(period.GetStart())
			ap.Start = &start
		}
		if period.End != nil {
			end := int64(period.GetEnd())
			ap.End = &end
		}
		payload.ActivePeriods = append(payload.ActivePeriods, ap)
	}

	for _, selector := range a.GetInformedEntity() {
		informed := InformedEntity{}
		if selector.Trip != nil {
			informed.Trip = &TripDescriptor{
				TripID:    selector.Trip.GetTripId(),
				StartTime: selector.Trip.GetStartTime(),
				StartDate: selector.Trip.GetStartDate(),
			}
		}
		payload.InformedEntities = append(payload.InformedEntities, informed)
	}

	payload.HeaderText = translatedStringFromProto(a.GetHeaderText())
	payload.DescriptionText = translatedStringFromProto(a.GetDescriptionText())

	return payload
}

func translatedStringFromProto(ts *gtfsproto.TranslatedString) *TranslatedString {
	if ts == nil {
		return nil
	}
	out := &TranslatedString{}
	for _, tr := range ts.GetTranslation() {
		out.Translations = append(out.Translations, Translation{
			Language: tr.GetLanguage(),
			Text:     tr.GetText(),
		})
	}
	return out
}
