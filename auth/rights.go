package auth

import "context"

// Rights is the caller's standing with respect to a single crate, ordered
// None < Publish < Full so callers can compare with >=.
type Rights int

const (
	None Rights = iota
	Publish
	Full
)

// Satisfies reports whether r meets or exceeds the minimum required.
func (r Rights) Satisfies(min Rights) bool { return r >= min }

// TeamMembership checks live team membership against GitHub, the way §4.6
// requires ("verified live via GitHub API") rather than trusting a cached
// membership table that can drift from reality.
type TeamMembership interface {
	IsActiveMember(ctx context.Context, teamGitHubID, userGitHubID int64) (bool, error)
}

// Owner is the subset of a CrateOwnership/User|Team join the resolver
// needs; callers assemble it from the repository layer so this package
// stays free of a database dependency.
type Owner struct {
	IsTeam       bool
	UserID       int64 // meaningful when !IsTeam
	TeamGitHubID int64 // meaningful when IsTeam
}

// ResolveRights computes the caller's Rights over a crate from its owner
// set: Full if the caller is a direct user-owner, Publish if the caller is
// a live member of an owning team, else None. Per §4.6, teams never grant
// Full — only a direct user-ownership row does.
func ResolveRights(ctx context.Context, callerUserID, callerGitHubID int64, owners []Owner, teams TeamMembership) (Rights, error) {
	best := None
	for _, o := range owners {
		if !o.IsTeam {
			if o.UserID == callerUserID {
				return Full, nil
			}
			continue
		}
		if best >= Publish {
			continue
		}
		if teams == nil {
			continue
		}
		member, err := teams.IsActiveMember(ctx, o.TeamGitHubID, callerGitHubID)
		if err != nil {
			return None, err
		}
		if member {
			best = Publish
		}
	}
	return best, nil
}
