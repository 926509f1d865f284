package auth

// Known OAuth scopes used by the membership surface.
const (
	ScopePaymentsRead      = "payments:read"
	ScopePaymentsWrite     = "payments:write"
	ScopePaymentsApprove   = "payments:approve"
	ScopeFeesWrite         = "fees:write"
	ScopeNotificationsRead = "notifications:read"
)
