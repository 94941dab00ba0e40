package match

// Role is the caller role supplied by the identity collaborator.
type Role string

const (
	RoleSuperAdmin       Role = "super-admin"
	RoleCompetitionAdmin Role = "competition-admin"
	RoleLiveFixtureAdmin Role = "live-fixture-admin"
	RoleMediaAdmin       Role = "media-admin"
	RoleRatingAdmin      Role = "rating-admin"
	RoleViewer           Role = "viewer"
)

// Actor is who attempted a command.
type Actor struct {
	ID   string
	Role Role
}

var (
	// MatchControl may drive the fixture: status, score, timeline, lineups, clock.
	MatchControl = []Role{RoleSuperAdmin, RoleCompetitionAdmin, RoleLiveFixtureAdmin}
	// OfficialRating may name the official player of the match.
	OfficialRating = []Role{RoleSuperAdmin, RoleMediaAdmin, RoleRatingAdmin}
	// Audience may cheer and vote.
	Audience = []Role{
		RoleSuperAdmin, RoleCompetitionAdmin, RoleLiveFixtureAdmin,
		RoleMediaAdmin, RoleRatingAdmin, RoleViewer,
	}
)

// Authorize returns Unauthorized unless a's role is in allowed.
func Authorize(a Actor, command string, allowed []Role) error {
	for _, r := range allowed {
		if a.Role == r {
			return nil
		}
	}
	if a.Role == "" {
		return Errorf(KindUnauthorized, "%s requires a role", command)
	}
	return Errorf(KindUnauthorized, "role %s may not %s", a.Role, command)
}
