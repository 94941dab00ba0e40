package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-live/internal/api/respond"
	"github.com/albapepper/scoracle-live/internal/cache"
	"github.com/albapepper/scoracle-live/internal/engine"
	"github.com/albapepper/scoracle-live/internal/match"
)

// Identity headers set by the gateway in front of this service.
const (
	HeaderActorRole = "X-Actor-Role"
	HeaderActorID   = "X-Actor-ID"
)

const maxBodyBytes = 1 << 20

// actorFrom reads the caller identity. No role means no privileges.
func actorFrom(r *http.Request) match.Actor {
	return match.Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Role: match.Role(strings.TrimSpace(r.Header.Get(HeaderActorRole))),
	}
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "Request body must be valid JSON"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		respond.WriteErrorDetail(w, http.StatusBadRequest, "BAD_REQUEST", msg, err.Error())
		return false
	}
	return true
}

// command writes a command result or its error.
func command(w http.ResponseWriter, status int, snap *match.LiveFixture, err error) {
	if err != nil {
		respond.WriteEngineError(w, err)
		return
	}
	respond.WriteJSONObject(w, status, snap)
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// GetLiveFixture returns the full snapshot of one fixture. Snapshots are
// cached per version, so the ETag changes with every accepted command.
func (h *Handler) GetLiveFixture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fixtureID")
	snap, err := h.engine.GetLiveFixture(r.Context(), id)
	if err != nil {
		respond.WriteEngineError(w, err)
		return
	}

	cacheKey := cache.SnapshotKey(id, snap.Version)
	ttl := cache.TTLSnapshot

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		respond.WriteEngineError(w, err)
		return
	}
	etag := h.cache.Set(cacheKey, data, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, ttl, false)
}

// ListLiveFixtures returns every fixture currently in memory.
func (h *Handler) ListLiveFixtures(w http.ResponseWriter, r *http.Request) {
	fixtures := h.engine.ListLiveFixtures()
	if fixtures == nil {
		fixtures = []*match.LiveFixture{}
	}

	var sig strings.Builder
	for _, f := range fixtures {
		fmt.Fprintf(&sig, "%s@%d;", f.ID, f.Version)
	}
	cacheKey := "list:" + cache.ComputeETag([]byte(sig.String()))
	ttl := cache.TTLList

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	data, err := json.Marshal(map[string]any{
		"fixtures": fixtures,
		"count":    len(fixtures),
	})
	if err != nil {
		respond.WriteEngineError(w, err)
		return
	}
	etag := h.cache.Set(cacheKey, data, ttl)
	respond.WriteJSON(w, data, etag, ttl, false)
}

// GetAudience returns the live viewer count of a fixture.
func (h *Handler) GetAudience(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fixtureID")
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"fixtureId": id,
		"count":     h.engine.GetAudienceCount(id),
	})
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

type initializeRequest struct {
	FixtureID     string         `json:"fixtureId"`
	CompetitionID string         `json:"competitionId"`
	HomeTeam      match.Team     `json:"homeTeam"`
	AwayTeam      match.Team     `json:"awayTeam"`
	Info          match.Info     `json:"info"`
	Lineups       *match.Lineups `json:"lineups"`
}

// Initialize opens a fixture for live coverage.
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.Initialize(r.Context(), actorFrom(r), engine.InitializeInput{
		FixtureID:     req.FixtureID,
		CompetitionID: req.CompetitionID,
		HomeTeam:      req.HomeTeam,
		AwayTeam:      req.AwayTeam,
		Info:          req.Info,
		Lineups:       req.Lineups,
	})
	command(w, http.StatusCreated, snap, err)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves the fixture to a new phase.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	next, err := match.ParseStatus(req.Status)
	if err != nil {
		respond.WriteEngineError(w, err)
		return
	}
	snap, err := h.engine.UpdateStatus(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), next)
	command(w, http.StatusOK, snap, err)
}

type scoreRequest struct {
	HomeScore   *int `json:"homeScore"`
	AwayScore   *int `json:"awayScore"`
	HomePenalty *int `json:"homePenalty"`
	AwayPenalty *int `json:"awayPenalty"`
	Correction  bool `json:"correction"`
}

// UpdateScore sets absolute score values.
func (h *Handler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.UpdateScore(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.ScoreInput(req))
	command(w, http.StatusOK, snap, err)
}

type incrementRequest struct {
	Team    string `json:"team"`
	By      int    `json:"by"`
	Penalty bool   `json:"penalty"`
}

// IncrementScore adds to one side's goals or penalty tally.
func (h *Handler) IncrementScore(w http.ResponseWriter, r *http.Request) {
	var req incrementRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.IncrementScore(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.IncrementInput{
		Team:    match.Side(req.Team),
		By:      req.By,
		Penalty: req.Penalty,
	})
	command(w, http.StatusOK, snap, err)
}

type timelineRequest struct {
	Type            string `json:"type"`
	Team            string `json:"team"`
	PlayerID        string `json:"playerId"`
	PlayerName      string `json:"playerName"`
	RelatedPlayerID string `json:"relatedPlayerId"`
	Minute          *int   `json:"minute"`
	AddedTime       int    `json:"addedTime"`
	Description     string `json:"description"`
}

// AddTimelineEvent records a goal, card or other match event.
func (h *Handler) AddTimelineEvent(w http.ResponseWriter, r *http.Request) {
	var req timelineRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.AddTimelineEvent(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.TimelineInput{
		Type:            match.EventKind(req.Type),
		Team:            match.Side(req.Team),
		PlayerID:        req.PlayerID,
		PlayerName:      req.PlayerName,
		RelatedPlayerID: req.RelatedPlayerID,
		Minute:          req.Minute,
		AddedTime:       req.AddedTime,
		Description:     req.Description,
	})
	command(w, http.StatusCreated, snap, err)
}

type substitutionRequest struct {
	Team      string `json:"team"`
	PlayerOut string `json:"playerOut"`
	PlayerIn  string `json:"playerIn"`
	Minute    *int   `json:"minute"`
	Reason    string `json:"reason"`
}

// AddSubstitution swaps a player on the pitch for one on the bench.
func (h *Handler) AddSubstitution(w http.ResponseWriter, r *http.Request) {
	var req substitutionRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.AddSubstitution(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.SubstitutionInput{
		Team:      match.Side(req.Team),
		PlayerOut: req.PlayerOut,
		PlayerIn:  req.PlayerIn,
		Minute:    req.Minute,
		Reason:    req.Reason,
	})
	command(w, http.StatusCreated, snap, err)
}

type statsPatch struct {
	Shots         *int `json:"shots"`
	ShotsOnTarget *int `json:"shotsOnTarget"`
	Fouls         *int `json:"fouls"`
	YellowCards   *int `json:"yellowCards"`
	RedCards      *int `json:"redCards"`
	Corners       *int `json:"corners"`
	Offsides      *int `json:"offsides"`
	Saves         *int `json:"saves"`
	Possession    *int `json:"possession"`
}

type statisticsRequest struct {
	Home       *statsPatch `json:"home"`
	Away       *statsPatch `json:"away"`
	Correction bool        `json:"correction"`
}

func (p *statsPatch) input() *engine.StatsPatch {
	if p == nil {
		return nil
	}
	in := engine.StatsPatch(*p)
	return &in
}

// UpdateStatistics sets team statistic counters.
func (h *Handler) UpdateStatistics(w http.ResponseWriter, r *http.Request) {
	var req statisticsRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.UpdateStatistics(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.StatisticsInput{
		Home:       req.Home.input(),
		Away:       req.Away.input(),
		Correction: req.Correction,
	})
	command(w, http.StatusOK, snap, err)
}

type lineupsRequest struct {
	Home *match.Lineup `json:"home"`
	Away *match.Lineup `json:"away"`
}

// SetLineups replaces one or both lineups.
func (h *Handler) SetLineups(w http.ResponseWriter, r *http.Request) {
	var req lineupsRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.SetLineups(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.LineupsInput(req))
	command(w, http.StatusOK, snap, err)
}

type clockRequest struct {
	CurrentMinute *int `json:"currentMinute"`
	InjuryTime    *int `json:"injuryTime"`
}

// AdjustClock corrects the match minute or injury time.
func (h *Handler) AdjustClock(w http.ResponseWriter, r *http.Request) {
	var req clockRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.AdjustClock(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.ClockInput(req))
	command(w, http.StatusOK, snap, err)
}

type infoRequest struct {
	Venue      *string    `json:"venue"`
	Referee    *string    `json:"referee"`
	Attendance *int       `json:"attendance"`
	Notes      *string    `json:"notes"`
	KickoffAt  *time.Time `json:"kickoffAt"`
}

// UpdateInfo patches venue, referee and other details.
func (h *Handler) UpdateInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.UpdateInfo(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.InfoInput(req))
	command(w, http.StatusOK, snap, err)
}

type cheerRequest struct {
	Team  string `json:"team"`
	Count int    `json:"count"`
}

// UpdateCheer adds cheers for one side.
func (h *Handler) UpdateCheer(w http.ResponseWriter, r *http.Request) {
	var req cheerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.UpdateCheer(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), engine.CheerInput{
		Team:  match.Side(req.Team),
		Count: req.Count,
	})
	command(w, http.StatusOK, snap, err)
}

type playerRequest struct {
	PlayerID string `json:"playerId"`
}

// SubmitPOTMVote records or moves the caller's player-of-the-match vote.
func (h *Handler) SubmitPOTMVote(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.SubmitPOTMVote(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), req.PlayerID)
	command(w, http.StatusOK, snap, err)
}

// SetOfficialPOTM names the official player of the match.
func (h *Handler) SetOfficialPOTM(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.engine.SetOfficialPOTM(r.Context(), actorFrom(r), chi.URLParam(r, "fixtureID"), req.PlayerID)
	command(w, http.StatusOK, snap, err)
}
