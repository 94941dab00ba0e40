package match

// EventType is the broadcast vocabulary for a fixture room.
type EventType string

const (
	ScoreUpdate        EventType = "score-update"
	MinuteUpdate       EventType = "minute-update"
	TimelineUpdate     EventType = "timeline-update"
	StatisticsUpdate   EventType = "statistics-update"
	StatusUpdate       EventType = "status-update"
	GeneralUpdate      EventType = "general-update"
	CheerUpdate        EventType = "cheer-update"
	POTMUpdate         EventType = "potm-update"
	SubstitutionUpdate EventType = "substitution-update"
	GoalScorerUpdate   EventType = "goalscorer-update"
	LineupUpdate       EventType = "lineup-update"
	AudienceUpdate     EventType = "audience-update"
)

// EventTypes lists every event the engine may emit.
var EventTypes = []EventType{
	ScoreUpdate, MinuteUpdate, TimelineUpdate, StatisticsUpdate, StatusUpdate,
	GeneralUpdate, CheerUpdate, POTMUpdate, SubstitutionUpdate, GoalScorerUpdate,
	LineupUpdate, AudienceUpdate,
}

// Change is one broadcastable piece of a delta.
type Change struct {
	Type    EventType `json:"type"`
	Payload any       `json:"data"`
}

// Delta is the ordered list of changes produced by one accepted command.
type Delta []Change

// Add appends a change.
func (d *Delta) Add(t EventType, payload any) {
	*d = append(*d, Change{Type: t, Payload: payload})
}

// Types returns the event types in order.
func (d Delta) Types() []EventType {
	out := make([]EventType, len(d))
	for i, c := range d {
		out[i] = c.Type
	}
	return out
}

// MinutePayload is the minute-update body.
type MinutePayload struct {
	CurrentMinute int `json:"currentMinute"`
	InjuryTime    int `json:"injuryTime"`
}

// StatusPayload is the status-update body.
type StatusPayload struct {
	Status         Status `json:"status"`
	PreviousStatus Status `json:"previousStatus"`
	CurrentMinute  int    `json:"currentMinute"`
}

// TimelinePayload is the timeline-update body.
type TimelinePayload struct {
	Event TimelineEvent `json:"event"`
}

// AudiencePayload is the audience-update body.
type AudiencePayload struct {
	Count int `json:"count"`
}

// POTMPayload is the potm-update body. Voter identities are never broadcast.
type POTMPayload struct {
	Votes    map[string]int `json:"votes"`
	Official *OfficialAward `json:"official"`
}
