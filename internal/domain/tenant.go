package domain

import "time"

// Tenant is the top-level multi-tenancy boundary. Created and destroyed by
// the control plane; deletion cascades to remove all tenant state
// (credentials, sync state, artifacts, CDC listeners).
type Tenant struct {
	ID           string
	Name         string
	EnabledSource map[Source]bool
	CreatedAt    time.Time
}

// IsSourceEnabled reports whether the tenant has the given source enabled.
func (t *Tenant) IsSourceEnabled(s Source) bool {
	if t == nil || t.EnabledSource == nil {
		return false
	}
	return t.EnabledSource[s]
}

// Credentials is the per-(tenant, source) credential bundle. Access tokens
// may be short-lived and must be refreshed through the factory's exclusive
// critical section (§4.2); refresh tokens are one-shot for some sources
// (Canva rotates both on every refresh) and long-lived for others.
type Credentials struct {
	TenantID     string
	Source       Source
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	Subdomain    string
	ExpiresAt    *time.Time // nil for long-lived/non-expiring credentials
}

// NeedsRefresh reports whether the access token is within buffer of
// expiring; it returns false when no expiry is tracked (ExpiresAt nil).
func (c *Credentials) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(buffer).Before(*c.ExpiresAt)
}
