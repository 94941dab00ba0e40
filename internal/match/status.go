package match

import "fmt"

// Status is the match phase of a live fixture.
type Status string

const (
	StatusPreMatch   Status = "pre-match"
	StatusFirstHalf  Status = "first-half"
	StatusHalfTime   Status = "half-time"
	StatusSecondHalf Status = "second-half"
	StatusExtraTime  Status = "extra-time"
	StatusPenalties  Status = "penalties"
	StatusFinished   Status = "finished"
	StatusPostponed  Status = "postponed"
	StatusAbandoned  Status = "abandoned"
)

// successors lists the forward moves of the phase graph. Postpone and abandon
// are handled separately since they are reachable from every non-terminal state.
var successors = map[Status][]Status{
	StatusPreMatch:   {StatusFirstHalf},
	StatusFirstHalf:  {StatusHalfTime},
	StatusHalfTime:   {StatusSecondHalf},
	StatusSecondHalf: {StatusFinished, StatusExtraTime},
	StatusExtraTime:  {StatusPenalties, StatusFinished},
	StatusPenalties:  {StatusFinished},
}

// ParseStatus validates a wire value.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", Errorf(KindValidationFailed, "unknown status %q", v)
	}
	return s, nil
}

// Valid reports whether s is one of the known phases.
func (s Status) Valid() bool {
	switch s {
	case StatusPreMatch, StatusFirstHalf, StatusHalfTime, StatusSecondHalf,
		StatusExtraTime, StatusPenalties, StatusFinished, StatusPostponed, StatusAbandoned:
		return true
	}
	return false
}

// ActivePlay reports whether the match clock runs in this phase.
func (s Status) ActivePlay() bool {
	return s == StatusFirstHalf || s == StatusSecondHalf || s == StatusExtraTime
}

// Terminal reports whether the fixture is immutable in this phase.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

// Successors returns every status reachable from s in one step.
func (s Status) Successors() []Status {
	if s.Terminal() || !s.Valid() {
		return nil
	}
	next := append([]Status(nil), successors[s]...)
	if s != StatusPostponed {
		next = append(next, StatusPostponed)
	}
	return append(next, StatusAbandoned)
}

// CanTransition reports whether to is a defined successor of from.
func CanTransition(from, to Status) bool {
	for _, s := range from.Successors() {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidTransition or InvalidFixtureState error
// when moving from -> to is not allowed.
func CheckTransition(from, to Status) error {
	if from.Terminal() {
		return Errorf(KindInvalidFixtureState, "fixture is %s", from)
	}
	if !to.Valid() {
		return Errorf(KindValidationFailed, "unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return &Error{
			Kind:    KindInvalidTransition,
			Message: fmt.Sprintf("cannot move from %s to %s", from, to),
		}
	}
	return nil
}
