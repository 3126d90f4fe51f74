package auth

const (
	ScopeOpenID    = "openid"
	ScopeProfile   = "profile"
	ScopeEmail     = "email"
	ScopePlanRead  = "plan:read"
	ScopePlanWrite = "plan:write"
)

// AllScopes defines the full set of scopes requested by API clients.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopePlanRead,
	ScopePlanWrite,
}
