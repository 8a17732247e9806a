package registry

import "time"

// User is an author account, identified durably by GitHubID (logins are
// recycled by GitHub and are not unique).
type User struct {
	ID               int64      `json:"id"`
	Login            string     `json:"login"`
	DisplayName      string     `json:"display_name,omitempty"`
	GitHubID         int64      `json:"github_id"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	EncryptedToken   []byte     `json:"-"`
	IsAdmin          bool       `json:"is_admin"`
	AccountLockReason string    `json:"-"`
	AccountLockUntil *time.Time `json:"-"`
}

// Locked reports whether the user's account lock, if any, is currently in
// effect. A nil Until means the lock is indefinite.
func (u *User) Locked(now time.Time) bool {
	if u.AccountLockReason == "" {
		return false
	}
	return u.AccountLockUntil == nil || u.AccountLockUntil.After(now)
}

// Team is a registry-synthetic id over a GitHub org/team pair.
type Team struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"` // "github:<org>:<team>"
	OrgGitHubID int64  `json:"org_github_id"`
	TeamGitHubID int64 `json:"team_github_id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Email is an address owned by a User.
type Email struct {
	ID               int64  `json:"id"`
	UserID           int64  `json:"user_id"`
	Address          string `json:"email"`
	Verified         bool   `json:"verified"`
	Primary          bool   `json:"primary"`
	VerificationToken string `json:"-"`
}

// OwnerKind distinguishes the two kinds of crate owner.
type OwnerKind string

const (
	OwnerUser OwnerKind = "user"
	OwnerTeam OwnerKind = "team"
)

// CrateOwnership is a join row between a Crate and a User or Team.
type CrateOwnership struct {
	CrateID           int64     `json:"crate_id"`
	OwnerKind         OwnerKind `json:"owner_kind"`
	OwnerID           int64     `json:"owner_id"`
	CreatedBy         int64     `json:"created_by"`
	EmailNotifications bool     `json:"email_notifications"`
	Deleted           bool      `json:"-"`
}

// OwnerInvitation is a pending CrateOwnership, accepted or declined by the
// invited user.
type OwnerInvitation struct {
	InvitedUserID int64     `json:"invited_user_id"`
	InvitedByID   int64     `json:"invited_by_id"`
	CrateID       int64     `json:"crate_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// InvitationTTL is the lifetime of an OwnerInvitation, per §3.
const InvitationTTL = 30 * 24 * time.Hour

// Expired reports whether the invitation has passed its ExpiresAt.
func (i OwnerInvitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EndpointScope enumerates the operations an ApiToken may be restricted to.
type EndpointScope string

const (
	ScopePublishNew    EndpointScope = "publish-new"
	ScopePublishUpdate EndpointScope = "publish-update"
	ScopeYank          EndpointScope = "yank"
	ScopeChangeOwners  EndpointScope = "change-owners"
)

// ApiToken is a scoped, hashed credential belonging to a User.
type ApiToken struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Name         string          `json:"name"`
	HashedToken  []byte          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUsedAt   *time.Time      `json:"last_used_at,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	Revoked      bool            `json:"revoked"`
	CrateScope   []string        `json:"crate_scope,omitempty"`
	EndpointScope []EndpointScope `json:"endpoint_scope,omitempty"`
}

// Expired reports whether the token has passed its ExpiresAt.
func (t *ApiToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// AllowsEndpoint reports whether the token's endpoint scope (if any) permits
// the given operation. A nil/empty scope list permits everything.
func (t *ApiToken) AllowsEndpoint(s EndpointScope) bool {
	if len(t.EndpointScope) == 0 {
		return true
	}
	for _, have := range t.EndpointScope {
		if have == s {
			return true
		}
	}
	return false
}

// TrustedPublisherConfig authorizes a specific CI identity to mint
// short-lived publish tokens for a Crate.
type TrustedPublisherConfig struct {
	ID          int64  `json:"id"`
	CrateID     int64  `json:"crate_id"`
	Provider    string `json:"provider"`
	RepoOwnerID int64  `json:"repo_owner_id"`
	Repo        string `json:"repo"`
	Workflow    string `json:"workflow_filename"`
	Environment string `json:"environment,omitempty"`
}
