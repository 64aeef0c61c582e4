package feed

// Feed families. A feed entity id is only meaningful within its family:
// trip update ids and alert ids are independent namespaces.
const (
	FamilyTripUpdate   = "trip_update"
	FamilyServiceAlert = "service_alert"
)

// Entity is one unit of a GTFS-realtime feed snapshot. Exactly one of
// TripUpdate or Alert is set. It doubles as the wire format between the
// producer and the consumer (JSON on the Kafka topics).
type Entity struct {
	ID         string             `json:"id"`
	TripUpdate *TripUpdatePayload `json:"tripUpdate,omitempty"`
	Alert      *AlertPayload      `json:"alert,omitempty"`
}

// Family reports which feed family the entity belongs to, or "" when the
// entity carries no recognized payload.
func (e Entity) Family() string {
	switch {
	case e.TripUpdate != nil:
		return FamilyTripUpdate
	case e.Alert != nil:
		return FamilyServiceAlert
	default:
		return ""
	}
}

type TripUpdatePayload struct {
	Trip            TripDescriptor  `json:"trip"`
	Timestamp       *int64          `json:"timestamp,omitempty"`
	StopTimeUpdates []StopTimeEvent `json:"stopTimeUpdate,omitempty"`
}

type TripDescriptor struct {
	TripID    string `json:"tripId,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	StartDate string `json:"startDate,omitempty"`
}

// StopTimeEvent carries the arrival/departure prediction for one stop.
// Arrival and departure are optional independently of each other.
type StopTimeEvent struct {
	StopID    string     `json:"stopId,omitempty"`
	Arrival   *TimeDelay `json:"arrival,omitempty"`
	Departure *TimeDelay `json:"departure,omitempty"`
}

type TimeDelay struct {
	Time  *int64 `json:"time,omitempty"`
	Delay *int64 `json:"delay,omitempty"`
}

type AlertPayload struct {
	ActivePeriods    []ActivePeriod    `json:"activePeriod,omitempty"`
	InformedEntities []InformedEntity  `json:"informedEntity,omitempty"`
	Cause            string            `json:"cause,omitempty"`
	Severity         string            `json:"severityLevel,omitempty"`
	HeaderText       *TranslatedString `json:"headerText,omitempty"`
	DescriptionText  *TranslatedString `json:"descriptionText,omitempty"`
}

type ActivePeriod struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// InformedEntity identifies what an alert applies to. Only trip-level
// selectors are modeled; route and stop selectors are dropped upstream.
type InformedEntity struct {
	Trip *TripDescriptor `json:"trip,omitempty"`
}

type TranslatedString struct {
	Translations []Translation `json:"translation,omitempty"`
}

type Translation struct {
	Language string `json:"language,omitempty"`
	Text     string `json:"text,omitempty"`
}
