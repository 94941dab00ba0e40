package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/scoracle-live/internal/match"
)

// InitializeInput opens a fixture for live coverage.
type InitializeInput struct {
	FixtureID     string
	CompetitionID string
	HomeTeam      match.Team
	AwayTeam      match.Team
	Info          match.Info
	Lineups       *match.Lineups
}

// GeneralPayload is the general-update body.
type GeneralPayload struct {
	CompetitionID string     `json:"competitionId,omitempty"`
	HomeTeam      match.Team `json:"homeTeam"`
	AwayTeam      match.Team `json:"awayTeam"`
	Info          match.Info `json:"info"`
}

func generalPayload(f *match.LiveFixture) GeneralPayload {
	return GeneralPayload{
		CompetitionID: f.CompetitionID,
		HomeTeam:      f.HomeTeam,
		AwayTeam:      f.AwayTeam,
		Info:          f.Info,
	}
}

// Initialize creates the live fixture in pre-match.
func (e *Engine) Initialize(ctx context.Context, a match.Actor, in InitializeInput) (*match.LiveFixture, error) {
	if err := match.Authorize(a, "initialize a live fixture", match.MatchControl); err != nil {
		return nil, err
	}
	if in.FixtureID == "" {
		return nil, match.Errorf(match.KindValidationFailed, "fixture id is required")
	}
	if in.HomeTeam.ID == "" || in.AwayTeam.ID == "" {
		return nil, match.Errorf(match.KindValidationFailed, "both team ids are required")
	}
	if in.HomeTeam.ID == in.AwayTeam.ID {
		return nil, match.Errorf(match.KindValidationFailed, "home and away team must differ")
	}

	doc := match.New(in.FixtureID, in.HomeTeam, in.AwayTeam, e.now())
	doc.CompetitionID = in.CompetitionID
	doc.Info = in.Info
	if in.Lineups != nil {
		home, away := in.Lineups.Home, in.Lineups.Away
		if err := setLineups(doc, &home, &away); err != nil {
			return nil, err
		}
	}

	var committed *match.LiveFixture
	err := e.store.Create(ctx, in.FixtureID, doc, func(f *match.LiveFixture, _ match.Delta) {
		committed = f.Public()
		e.hub.Publish(f.ID, f.Version, match.GeneralUpdate, generalPayload(f))
	})
	if err != nil {
		if match.KindOf(err) == match.KindAlreadyExists {
			return nil, match.Wrap(match.KindAlreadyLive, err, "fixture %s is already live", in.FixtureID)
		}
		return nil, err
	}
	e.logger.Info("Live fixture initialized", "fixture_id", in.FixtureID,
		"home", in.HomeTeam.Name, "away", in.AwayTeam.Name)
	return committed, nil
}

// UpdateStatus moves the fixture along the phase graph.
func (e *Engine) UpdateStatus(ctx context.Context, a match.Actor, fixtureID string, next match.Status) (*match.LiveFixture, error) {
	snap, err := e.apply(ctx, a, "change fixture status", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		if err := match.CheckTransition(f.Status, next); err != nil {
			return nil, err
		}
		prev := f.Status
		f.Status = next

		var d match.Delta
		if next == match.StatusHalfTime {
			f.Result.HalftimeHomeScore = f.Result.HomeScore
			f.Result.HalftimeAwayScore = f.Result.AwayScore
			d.Add(match.ScoreUpdate, f.Result)
		}
		if next.Terminal() {
			at := e.now()
			f.FinalizedAt = &at
		}
		d.Add(match.StatusUpdate, match.StatusPayload{
			Status:         next,
			PreviousStatus: prev,
			CurrentMinute:  f.CurrentMinute,
		})
		return d, nil
	})
	if err != nil {
		return nil, err
	}

	if next.Terminal() {
		if ferr := e.store.Finalize(ctx, fixtureID); ferr != nil {
			e.logger.Warn("Archive failed, will retry", "fixture_id", fixtureID, "error", ferr)
		} else {
			e.logger.Info("Live fixture finalized", "fixture_id", fixtureID, "status", next)
		}
	}
	return snap, nil
}

// ScoreInput sets absolute score values. Nil fields are left alone.
type ScoreInput struct {
	HomeScore   *int
	AwayScore   *int
	HomePenalty *int
	AwayPenalty *int
	Correction  bool // allow lowering a value
}

// UpdateScore sets the scoreline.
func (e *Engine) UpdateScore(ctx context.Context, a match.Actor, fixtureID string, in ScoreInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "update the score", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		r := f.Result
		fields := []struct {
			name string
			in   *int
			cur  *int
		}{
			{"homeScore", in.HomeScore, &r.HomeScore},
			{"awayScore", in.AwayScore, &r.AwayScore},
			{"homePenalty", in.HomePenalty, &r.HomePenalty},
			{"awayPenalty", in.AwayPenalty, &r.AwayPenalty},
		}
		for _, fl := range fields {
			if fl.in == nil {
				continue
			}
			if err := checkCounter(fl.name, *fl.cur, *fl.in, in.Correction); err != nil {
				return nil, err
			}
			*fl.cur = *fl.in
		}
		if r == f.Result {
			return nil, nil
		}
		f.Result = r
		var d match.Delta
		d.Add(match.ScoreUpdate, f.Result)
		return d, nil
	})
}

// IncrementInput adds goals (or shoot-out conversions) for one side.
type IncrementInput struct {
	Team    match.Side
	By      int // defaults to 1
	Penalty bool
}

// IncrementScore bumps one side's score.
func (e *Engine) IncrementScore(ctx context.Context, a match.Actor, fixtureID string, in IncrementInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "update the score", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		side, err := match.ParseSide(string(in.Team))
		if err != nil {
			return nil, err
		}
		by := in.By
		if by == 0 {
			by = 1
		}
		if by < 0 {
			return nil, match.Errorf(match.KindValidationFailed, "increment must be positive, got %d", by)
		}
		if in.Penalty && f.Status != match.StatusPenalties {
			return nil, match.Errorf(match.KindValidationFailed, "shoot-out goals need status %s, fixture is %s",
				match.StatusPenalties, f.Status)
		}

		switch {
		case in.Penalty && side == match.Home:
			f.Result.HomePenalty += by
		case in.Penalty:
			f.Result.AwayPenalty += by
		case side == match.Home:
			f.Result.HomeScore += by
		default:
			f.Result.AwayScore += by
		}
		var d match.Delta
		d.Add(match.ScoreUpdate, f.Result)
		return d, nil
	})
}

// TimelineInput records one timeline entry. Minute defaults to the clock.
type TimelineInput struct {
	Type            match.EventKind
	Team            match.Side
	PlayerID        string
	PlayerName      string
	RelatedPlayerID string
	Minute          *int
	AddedTime       int
	Description     string
}

// AddTimelineEvent appends to the timeline. Goal kinds also credit a goal
// scorer; the score itself is a separate command.
func (e *Engine) AddTimelineEvent(ctx context.Context, a match.Actor, fixtureID string, in TimelineInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "record a timeline event", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		kind, err := match.ParseEventKind(string(in.Type))
		if err != nil {
			return nil, err
		}
		if kind == match.EventSubstitution {
			return nil, match.Errorf(match.KindValidationFailed, "substitutions are recorded with the substitution command")
		}
		side, err := match.ParseSide(string(in.Team))
		if err != nil {
			return nil, err
		}
		minute, err := e.eventMinute(f, in.Minute)
		if err != nil {
			return nil, err
		}
		if in.AddedTime < 0 {
			return nil, match.Errorf(match.KindValidationFailed, "added time must not be negative")
		}
		if kind.IsGoal() && in.PlayerID == "" {
			return nil, match.Errorf(match.KindValidationFailed, "%s needs a player", kind)
		}

		lineup := f.Lineups.Side(side)
		name := in.PlayerName
		idx := -1
		if in.PlayerID != "" && len(lineup.Players) > 0 {
			if idx = lineup.Find(in.PlayerID); idx < 0 {
				return nil, match.Errorf(match.KindNotFound, "player %s is not in the %s lineup", in.PlayerID, side)
			}
			if name == "" {
				name = lineup.Players[idx].Name
			}
		}

		ev := match.TimelineEvent{
			ID:              e.opts.NewID(),
			Seq:             f.NextSequence(),
			Type:            kind,
			Team:            side,
			PlayerID:        in.PlayerID,
			PlayerName:      name,
			RelatedPlayerID: in.RelatedPlayerID,
			Minute:          minute,
			AddedTime:       in.AddedTime,
			Description:     in.Description,
			RecordedAt:      e.now(),
		}
		f.InsertTimeline(ev)

		var d match.Delta
		d.Add(match.TimelineUpdate, match.TimelinePayload{Event: ev})

		if kind.IsGoal() {
			gs := match.GoalScorer{
				Team:            side,
				PlayerID:        in.PlayerID,
				PlayerName:      name,
				Minute:          minute,
				OwnGoal:         kind == match.EventOwnGoal,
				Penalty:         kind == match.EventPenaltyGoal,
				TimelineEventID: ev.ID,
			}
			f.GoalScorers = append(f.GoalScorers, gs)
			d.Add(match.GoalScorerUpdate, gs)
		}

		// A sending-off takes the player off the pitch.
		if kind == match.EventRedCard && idx >= 0 && lineup.Players[idx].OnPitch {
			lineup.Players[idx].OnPitch = false
			d.Add(match.LineupUpdate, f.Lineups)
		}
		return d, nil
	})
}

// SubstitutionInput swaps two players of one side.
type SubstitutionInput struct {
	Team      match.Side
	PlayerOut string
	PlayerIn  string
	Minute    *int
	Reason    string
}

// AddSubstitution records a substitution and its timeline mirror and
// updates the lineup.
func (e *Engine) AddSubstitution(ctx context.Context, a match.Actor, fixtureID string, in SubstitutionInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "record a substitution", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		side, err := match.ParseSide(string(in.Team))
		if err != nil {
			return nil, err
		}
		if in.PlayerOut == "" || in.PlayerIn == "" {
			return nil, match.Errorf(match.KindValidationFailed, "both players are required")
		}
		if in.PlayerOut == in.PlayerIn {
			return nil, match.Errorf(match.KindValidationFailed, "player %s cannot replace themself", in.PlayerIn)
		}
		minute, err := e.eventMinute(f, in.Minute)
		if err != nil {
			return nil, err
		}

		lineup := f.Lineups.Side(side)
		out := lineup.Find(in.PlayerOut)
		if out < 0 {
			return nil, match.Errorf(match.KindNotFound, "player %s is not in the %s lineup", in.PlayerOut, side)
		}
		inIdx := lineup.Find(in.PlayerIn)
		if inIdx < 0 {
			return nil, match.Errorf(match.KindNotFound, "player %s is not in the %s lineup", in.PlayerIn, side)
		}
		if !lineup.Players[out].OnPitch {
			return nil, match.Errorf(match.KindValidationFailed, "player %s is not on the pitch", in.PlayerOut)
		}
		if lineup.Players[inIdx].OnPitch || lineup.Players[inIdx].SubbedOff {
			return nil, match.Errorf(match.KindValidationFailed, "player %s is not available on the bench", in.PlayerIn)
		}

		lineup.Players[out].OnPitch = false
		lineup.Players[out].SubbedOff = true
		lineup.Players[inIdx].OnPitch = true

		now := e.now()
		sub := match.Substitution{
			ID:        e.opts.NewID(),
			Seq:       f.NextSequence(),
			Team:      side,
			PlayerOut: in.PlayerOut,
			PlayerIn:  in.PlayerIn,
			Minute:    minute,
			Reason:    in.Reason,
			MadeAt:    now,
		}
		f.Substitutions = append(f.Substitutions, sub)

		ev := match.TimelineEvent{
			ID:              e.opts.NewID(),
			Seq:             f.NextSequence(),
			Type:            match.EventSubstitution,
			Team:            side,
			PlayerID:        in.PlayerIn,
			PlayerName:      lineup.Players[inIdx].Name,
			RelatedPlayerID: in.PlayerOut,
			Minute:          minute,
			Description: fmt.Sprintf("%s replaces %s",
				lineup.Players[inIdx].Name, lineup.Players[out].Name),
			RecordedAt: now,
		}
		f.InsertTimeline(ev)

		var d match.Delta
		d.Add(match.SubstitutionUpdate, sub)
		d.Add(match.TimelineUpdate, match.TimelinePayload{Event: ev})
		d.Add(match.LineupUpdate, f.Lineups)
		return d, nil
	})
}

// StatsPatch carries absolute counter values for one side. Nil fields are
// left alone.
type StatsPatch struct {
	Shots         *int
	ShotsOnTarget *int
	Fouls         *int
	YellowCards   *int
	RedCards      *int
	Corners       *int
	Offsides      *int
	Saves         *int
	Possession    *int
}

// StatisticsInput patches either side's statistics.
type StatisticsInput struct {
	Home       *StatsPatch
	Away       *StatsPatch
	Correction bool
}

// UpdateStatistics applies absolute statistic values. When only one side's
// possession is given the other side gets the complement.
func (e *Engine) UpdateStatistics(ctx context.Context, a match.Actor, fixtureID string, in StatisticsInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "update statistics", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		stats := f.Statistics
		if err := patchSide("home", &stats.Home, in.Home, in.Correction); err != nil {
			return nil, err
		}
		if err := patchSide("away", &stats.Away, in.Away, in.Correction); err != nil {
			return nil, err
		}

		hp := in.Home != nil && in.Home.Possession != nil
		ap := in.Away != nil && in.Away.Possession != nil
		switch {
		case hp && ap:
			if stats.Home.Possession+stats.Away.Possession != 100 {
				return nil, match.Errorf(match.KindValidationFailed, "possession must sum to 100, got %d and %d",
					stats.Home.Possession, stats.Away.Possession)
			}
		case hp:
			stats.Away.Possession = 100 - stats.Home.Possession
		case ap:
			stats.Home.Possession = 100 - stats.Away.Possession
		}

		if stats == f.Statistics {
			return nil, nil
		}
		f.Statistics = stats
		var d match.Delta
		d.Add(match.StatisticsUpdate, f.Statistics)
		return d, nil
	})
}

func patchSide(side string, cur *match.SideStats, p *StatsPatch, correction bool) error {
	if p == nil {
		return nil
	}
	counters := []struct {
		name string
		in   *int
		cur  *int
	}{
		{"shots", p.Shots, &cur.Shots},
		{"shotsOnTarget", p.ShotsOnTarget, &cur.ShotsOnTarget},
		{"fouls", p.Fouls, &cur.Fouls},
		{"yellowCards", p.YellowCards, &cur.YellowCards},
		{"redCards", p.RedCards, &cur.RedCards},
		{"corners", p.Corners, &cur.Corners},
		{"offsides", p.Offsides, &cur.Offsides},
		{"saves", p.Saves, &cur.Saves},
	}
	for _, c := range counters {
		if c.in == nil {
			continue
		}
		if err := checkCounter(side+"."+c.name, *c.cur, *c.in, correction); err != nil {
			return err
		}
		*c.cur = *c.in
	}
	if p.Possession != nil {
		if v := *p.Possession; v < 0 || v > 100 {
			return match.Errorf(match.KindValidationFailed, "%s.possession must be within 0..100, got %d", side, v)
		}
		cur.Possession = *p.Possession
	}
	if cur.ShotsOnTarget > cur.Shots {
		return match.Errorf(match.KindValidationFailed, "%s shots on target (%d) exceed shots (%d)",
			side, cur.ShotsOnTarget, cur.Shots)
	}
	return nil
}

// LineupsInput replaces one or both sides' lineups.
type LineupsInput struct {
	Home *match.Lineup
	Away *match.Lineup
}

// SetLineups replaces lineups. Before kick-off every starter is on the
// pitch; afterwards the given on-pitch flags are kept as a correction.
func (e *Engine) SetLineups(ctx context.Context, a match.Actor, fixtureID string, in LineupsInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "set lineups", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		if in.Home == nil && in.Away == nil {
			return nil, match.Errorf(match.KindValidationFailed, "no lineup given")
		}
		if err := setLineups(f, in.Home, in.Away); err != nil {
			return nil, err
		}
		var d match.Delta
		d.Add(match.LineupUpdate, f.Lineups)
		return d, nil
	})
}

func setLineups(f *match.LiveFixture, home, away *match.Lineup) error {
	next := f.Lineups
	if home != nil {
		next.Home = copyLineup(*home)
	}
	if away != nil {
		next.Away = copyLineup(*away)
	}

	seen := make(map[string]match.Side)
	for _, side := range []match.Side{match.Home, match.Away} {
		l := next.Side(side)
		for i := range l.Players {
			p := &l.Players[i]
			if p.ID == "" {
				return match.Errorf(match.KindValidationFailed, "%s lineup has a player without id", side)
			}
			if other, dup := seen[p.ID]; dup {
				if other == side {
					return match.Errorf(match.KindValidationFailed, "player %s listed twice in the %s lineup", p.ID, side)
				}
				return match.Errorf(match.KindValidationFailed, "player %s listed for both sides", p.ID)
			}
			seen[p.ID] = side
			if f.Status == match.StatusPreMatch {
				p.OnPitch = p.Starting
				p.SubbedOff = false
			}
		}
	}
	f.Lineups = next
	return nil
}

func copyLineup(l match.Lineup) match.Lineup {
	l.Players = append([]match.LineupPlayer{}, l.Players...)
	return l
}

// ClockInput moves the clock forward by correction.
type ClockInput struct {
	CurrentMinute *int
	InjuryTime    *int
}

// AdjustClock corrects the match clock. Both values only move forward.
func (e *Engine) AdjustClock(ctx context.Context, a match.Actor, fixtureID string, in ClockInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "adjust the clock", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		minute, injury := f.CurrentMinute, f.InjuryTime
		if in.CurrentMinute != nil {
			if *in.CurrentMinute < minute {
				return nil, match.Errorf(match.KindValidationFailed, "clock cannot go back from %d to %d", minute, *in.CurrentMinute)
			}
			minute = *in.CurrentMinute
		}
		if in.InjuryTime != nil {
			if *in.InjuryTime < injury {
				return nil, match.Errorf(match.KindValidationFailed, "injury time cannot go back from %d to %d", injury, *in.InjuryTime)
			}
			injury = *in.InjuryTime
		}
		if minute == f.CurrentMinute && injury == f.InjuryTime {
			return nil, nil
		}
		f.CurrentMinute, f.InjuryTime = minute, injury
		var d match.Delta
		d.Add(match.MinuteUpdate, match.MinutePayload{CurrentMinute: minute, InjuryTime: injury})
		return d, nil
	})
}

// InfoInput patches the general match details.
type InfoInput struct {
	Venue      *string
	Referee    *string
	Attendance *int
	Notes      *string
	KickoffAt  *time.Time
}

// UpdateInfo patches venue, referee and other general details.
func (e *Engine) UpdateInfo(ctx context.Context, a match.Actor, fixtureID string, in InfoInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "update match info", match.MatchControl, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		info := f.Info
		if in.Venue != nil {
			info.Venue = *in.Venue
		}
		if in.Referee != nil {
			info.Referee = *in.Referee
		}
		if in.Attendance != nil {
			if *in.Attendance < 0 {
				return nil, match.Errorf(match.KindValidationFailed, "attendance must not be negative")
			}
			info.Attendance = *in.Attendance
		}
		if in.Notes != nil {
			info.Notes = *in.Notes
		}
		if in.KickoffAt != nil {
			info.KickoffAt = in.KickoffAt.UTC()
		}
		if info == f.Info {
			return nil, nil
		}
		f.Info = info
		var d match.Delta
		d.Add(match.GeneralUpdate, generalPayload(f))
		return d, nil
	})
}

// CheerInput adds cheers for one side.
type CheerInput struct {
	Team  match.Side
	Count int // defaults to 1
}

// UpdateCheer adds to the cheer meter.
func (e *Engine) UpdateCheer(ctx context.Context, a match.Actor, fixtureID string, in CheerInput) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "cheer", match.Audience, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		side, err := match.ParseSide(string(in.Team))
		if err != nil {
			return nil, err
		}
		n := in.Count
		if n == 0 {
			n = 1
		}
		if n < 0 || n > e.opts.MaxCheer {
			return nil, match.Errorf(match.KindValidationFailed, "cheer count must be within 1..%d, got %d", e.opts.MaxCheer, n)
		}
		if side == match.Home {
			f.CheerMeter.Home += n
		} else {
			f.CheerMeter.Away += n
		}
		var d match.Delta
		d.Add(match.CheerUpdate, f.CheerMeter)
		return d, nil
	})
}

// SubmitPOTMVote records the actor's fan vote. A voter has one vote;
// voting again moves it.
func (e *Engine) SubmitPOTMVote(ctx context.Context, a match.Actor, fixtureID, playerID string) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "vote for player of the match", match.Audience, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		if a.ID == "" {
			return nil, match.Errorf(match.KindValidationFailed, "voting needs a voter id")
		}
		if err := checkPlayer(f, playerID); err != nil {
			return nil, err
		}
		potm := &f.PlayerOfTheMatch
		prev, voted := potm.Voters[a.ID]
		if voted && prev == playerID {
			return nil, nil
		}
		if voted {
			if potm.Votes[prev]--; potm.Votes[prev] <= 0 {
				delete(potm.Votes, prev)
			}
		}
		potm.Votes[playerID]++
		potm.Voters[a.ID] = playerID

		var d match.Delta
		d.Add(match.POTMUpdate, match.POTMPayload{Votes: potm.Votes, Official: potm.Official})
		return d, nil
	})
}

// SetOfficialPOTM names the official player of the match.
func (e *Engine) SetOfficialPOTM(ctx context.Context, a match.Actor, fixtureID, playerID string) (*match.LiveFixture, error) {
	return e.apply(ctx, a, "name the official player of the match", match.OfficialRating, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		if err := checkPlayer(f, playerID); err != nil {
			return nil, err
		}
		potm := &f.PlayerOfTheMatch
		if potm.Official != nil && potm.Official.PlayerID == playerID {
			return nil, nil
		}
		potm.Official = &match.OfficialAward{PlayerID: playerID, AwardedBy: a.ID, AwardedAt: e.now()}

		var d match.Delta
		d.Add(match.POTMUpdate, match.POTMPayload{Votes: potm.Votes, Official: potm.Official})
		return d, nil
	})
}

// checkPlayer requires playerID to be in a lineup once any lineup is set.
func checkPlayer(f *match.LiveFixture, playerID string) error {
	if playerID == "" {
		return match.Errorf(match.KindValidationFailed, "player id is required")
	}
	if len(f.Lineups.Home.Players) == 0 && len(f.Lineups.Away.Players) == 0 {
		return nil
	}
	if f.Lineups.Home.Find(playerID) < 0 && f.Lineups.Away.Find(playerID) < 0 {
		return match.Errorf(match.KindNotFound, "player %s is in neither lineup", playerID)
	}
	return nil
}

// eventMinute resolves the minute of a new event against the clock.
func (e *Engine) eventMinute(f *match.LiveFixture, minute *int) (int, error) {
	if minute == nil {
		return f.CurrentMinute, nil
	}
	m := *minute
	if m < 0 {
		return 0, match.Errorf(match.KindValidationFailed, "minute must not be negative, got %d", m)
	}
	if limit := f.CurrentMinute + e.opts.MinuteTolerance; m > limit {
		return 0, match.Errorf(match.KindOutOfSequence, "minute %d is ahead of the clock (%d)", m, f.CurrentMinute)
	}
	return m, nil
}

func checkCounter(name string, cur, next int, correction bool) error {
	if next < 0 {
		return match.Errorf(match.KindValidationFailed, "%s must not be negative, got %d", name, next)
	}
	if next < cur && !correction {
		return match.Errorf(match.KindValidationFailed, "%s cannot drop from %d to %d without a correction", name, cur, next)
	}
	return nil
}
