package auth

// Known OAuth scopes used by the steps backend.
const (
	ScopeStepsWrite = "steps:write"
	ScopeStepsRead  = "steps:read"
)
