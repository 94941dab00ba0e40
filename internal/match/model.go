// Package match defines the live-fixture document, its phase state machine,
// the broadcast event vocabulary and the engine error taxonomy.
package match

import (
	"sort"
	"time"
)

// Side identifies the home or away team of a fixture.
type Side string

const (
	Home Side = "home"
	Away Side = "away"
)

// ParseSide validates a team reference.
func ParseSide(v string) (Side, error) {
	switch Side(v) {
	case Home, Away:
		return Side(v), nil
	}
	return "", Errorf(KindValidationFailed, "unknown team reference %q", v)
}

// Team is the external team record a fixture points at.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Result holds the scoreline.
type Result struct {
	HomeScore         int `json:"homeScore"`
	AwayScore         int `json:"awayScore"`
	HalftimeHomeScore int `json:"halftimeHomeScore"`
	HalftimeAwayScore int `json:"halftimeAwayScore"`
	HomePenalty       int `json:"homePenalty"`
	AwayPenalty       int `json:"awayPenalty"`
}

// SideStats are per-team match counters. Possession is a percentage.
type SideStats struct {
	Shots         int `json:"shots"`
	ShotsOnTarget int `json:"shotsOnTarget"`
	Fouls         int `json:"fouls"`
	YellowCards   int `json:"yellowCards"`
	RedCards      int `json:"redCards"`
	Corners       int `json:"corners"`
	Offsides      int `json:"offsides"`
	Saves         int `json:"saves"`
	Possession    int `json:"possession"`
}

// Statistics pairs both sides' counters.
type Statistics struct {
	Home SideStats `json:"home"`
	Away SideStats `json:"away"`
}

// Side returns a pointer to one side's counters.
func (s *Statistics) Side(side Side) *SideStats {
	if side == Away {
		return &s.Away
	}
	return &s.Home
}

// EventKind is the type of a timeline entry.
type EventKind string

const (
	EventGoal         EventKind = "goal"
	EventOwnGoal      EventKind = "own-goal"
	EventPenaltyGoal  EventKind = "penalty-goal"
	EventPenaltyMiss  EventKind = "penalty-miss"
	EventYellowCard   EventKind = "yellow-card"
	EventRedCard      EventKind = "red-card"
	EventSubstitution EventKind = "substitution"
	EventInjury       EventKind = "injury"
	EventVAR          EventKind = "var"
	EventCommentary   EventKind = "commentary"
	EventOther        EventKind = "other"
)

// ParseEventKind validates a wire value.
func ParseEventKind(v string) (EventKind, error) {
	switch k := EventKind(v); k {
	case EventGoal, EventOwnGoal, EventPenaltyGoal, EventPenaltyMiss, EventYellowCard,
		EventRedCard, EventSubstitution, EventInjury, EventVAR, EventCommentary, EventOther:
		return k, nil
	}
	return "", Errorf(KindValidationFailed, "unknown timeline event type %q", v)
}

// IsGoal reports whether the event credits a goal scorer.
func (k EventKind) IsGoal() bool {
	return k == EventGoal || k == EventOwnGoal || k == EventPenaltyGoal
}

// TimelineEvent is one entry of the match timeline. Seq is the fixture-wide
// insertion sequence and breaks ties between events sharing a minute.
type TimelineEvent struct {
	ID              string    `json:"id"`
	Seq             int64     `json:"seq"`
	Type            EventKind `json:"type"`
	Team            Side      `json:"team"`
	PlayerID        string    `json:"playerId,omitempty"`
	PlayerName      string    `json:"playerName,omitempty"`
	RelatedPlayerID string    `json:"relatedPlayerId,omitempty"`
	Minute          int       `json:"minute"`
	AddedTime       int       `json:"addedTime,omitempty"`
	Description     string    `json:"description,omitempty"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// Substitution records one player change.
type Substitution struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Team      Side      `json:"team"`
	PlayerOut string    `json:"playerOut"`
	PlayerIn  string    `json:"playerIn"`
	Minute    int       `json:"minute"`
	Reason    string    `json:"reason,omitempty"`
	MadeAt    time.Time `json:"madeAt"`
}

// GoalScorer is derived from a goal timeline event.
type GoalScorer struct {
	Team            Side   `json:"team"`
	PlayerID        string `json:"playerId"`
	PlayerName      string `json:"playerName,omitempty"`
	Minute          int    `json:"minute"`
	OwnGoal         bool   `json:"ownGoal,omitempty"`
	Penalty         bool   `json:"penalty,omitempty"`
	TimelineEventID string `json:"timelineEventId"`
}

// LineupPlayer is a squad member for one fixture.
type LineupPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Number    int    `json:"number,omitempty"`
	Position  string `json:"position,omitempty"`
	Starting  bool   `json:"starting"`
	OnPitch   bool   `json:"onPitch"`
	SubbedOff bool   `json:"subbedOff,omitempty"`
}

// Lineup is one side's squad.
type Lineup struct {
	Formation string         `json:"formation,omitempty"`
	Players   []LineupPlayer `json:"players"`
}

// Find returns the index of a player, or -1.
func (l *Lineup) Find(playerID string) int {
	for i := range l.Players {
		if l.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

// Lineups pairs both sides' squads.
type Lineups struct {
	Home Lineup `json:"home"`
	Away Lineup `json:"away"`
}

// Side returns a pointer to one side's lineup.
func (l *Lineups) Side(side Side) *Lineup {
	if side == Away {
		return &l.Away
	}
	return &l.Home
}

// CheerMeter aggregates crowd cheers per side.
type CheerMeter struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// OfficialAward is the player of the match named by a rating role.
type OfficialAward struct {
	PlayerID  string    `json:"playerId"`
	AwardedBy string    `json:"awardedBy"`
	AwardedAt time.Time `json:"awardedAt"`
}

// PlayerOfTheMatch holds fan votes and the official award.
type PlayerOfTheMatch struct {
	Votes    map[string]int    `json:"votes"`
	Voters   map[string]string `json:"voters,omitempty"`
	Official *OfficialAward    `json:"official"`
}

// Info carries the general match details broadcast as general-update.
type Info struct {
	Venue      string    `json:"venue,omitempty"`
	Referee    string    `json:"referee,omitempty"`
	Attendance int       `json:"attendance,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	KickoffAt  time.Time `json:"kickoffAt"`
}

// LiveFixture is the authoritative working state of a fixture being broadcast.
type LiveFixture struct {
	ID               string           `json:"id"`
	CompetitionID    string           `json:"competitionId,omitempty"`
	HomeTeam         Team             `json:"homeTeam"`
	AwayTeam         Team             `json:"awayTeam"`
	Status           Status           `json:"status"`
	CurrentMinute    int              `json:"currentMinute"`
	InjuryTime       int              `json:"injuryTime"`
	Result           Result           `json:"result"`
	Statistics       Statistics       `json:"statistics"`
	Timeline         []TimelineEvent  `json:"timeline"`
	Substitutions    []Substitution   `json:"substitutions"`
	GoalScorers      []GoalScorer     `json:"goalScorers"`
	Lineups          Lineups          `json:"lineups"`
	CheerMeter       CheerMeter       `json:"cheerMeter"`
	PlayerOfTheMatch PlayerOfTheMatch `json:"playerOfTheMatch"`
	Info             Info             `json:"info"`

	Version     int64      `json:"version"`
	NextSeq     int64      `json:"nextSeq"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
}

// New returns a pre-match fixture.
func New(id string, home, away Team, now time.Time) *LiveFixture {
	return &LiveFixture{
		ID:            id,
		HomeTeam:      home,
		AwayTeam:      away,
		Status:        StatusPreMatch,
		Timeline:      []TimelineEvent{},
		Substitutions: []Substitution{},
		GoalScorers:   []GoalScorer{},
		Lineups: Lineups{
			Home: Lineup{Players: []LineupPlayer{}},
			Away: Lineup{Players: []LineupPlayer{}},
		},
		PlayerOfTheMatch: PlayerOfTheMatch{
			Votes:  map[string]int{},
			Voters: map[string]string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NextSequence hands out the next insertion sequence number.
func (f *LiveFixture) NextSequence() int64 {
	f.NextSeq++
	return f.NextSeq
}

// InsertTimeline places ev at its (minute, seq) position. Seq must already be
// assigned and be greater than every seq in the timeline.
func (f *LiveFixture) InsertTimeline(ev TimelineEvent) {
	i := sort.Search(len(f.Timeline), func(i int) bool {
		t := f.Timeline[i]
		if t.Minute != ev.Minute {
			return t.Minute > ev.Minute
		}
		return t.Seq > ev.Seq
	})
	f.Timeline = append(f.Timeline, TimelineEvent{})
	copy(f.Timeline[i+1:], f.Timeline[i:])
	f.Timeline[i] = ev
}

// Clone returns a deep copy.
func (f *LiveFixture) Clone() *LiveFixture {
	if f == nil {
		return nil
	}
	c := *f
	c.Timeline = append([]TimelineEvent{}, f.Timeline...)
	c.Substitutions = append([]Substitution{}, f.Substitutions...)
	c.GoalScorers = append([]GoalScorer{}, f.GoalScorers...)
	c.Lineups.Home.Players = append([]LineupPlayer{}, f.Lineups.Home.Players...)
	c.Lineups.Away.Players = append([]LineupPlayer{}, f.Lineups.Away.Players...)
	c.PlayerOfTheMatch.Votes = make(map[string]int, len(f.PlayerOfTheMatch.Votes))
	for k, v := range f.PlayerOfTheMatch.Votes {
		c.PlayerOfTheMatch.Votes[k] = v
	}
	c.PlayerOfTheMatch.Voters = make(map[string]string, len(f.PlayerOfTheMatch.Voters))
	for k, v := range f.PlayerOfTheMatch.Voters {
		c.PlayerOfTheMatch.Voters[k] = v
	}
	if f.PlayerOfTheMatch.Official != nil {
		o := *f.PlayerOfTheMatch.Official
		c.PlayerOfTheMatch.Official = &o
	}
	if f.FinalizedAt != nil {
		t := *f.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}

// Public returns a deep copy with viewer-private data removed.
func (f *LiveFixture) Public() *LiveFixture {
	c := f.Clone()
	if c != nil {
		c.PlayerOfTheMatch.Voters = nil
	}
	return c
}

// TeamSide returns the team record for a side.
func (f *LiveFixture) TeamSide(side Side) Team {
	if side == Away {
		return f.AwayTeam
	}
	return f.HomeTeam
}
