package domain

// Actor identifies who performed a mutating call. It is only used for audit
// attribution; authorization happens before the engine is reached.
type Actor struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// RequestContext carries optional caller metadata for the audit trail.
type RequestContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// SystemActor attributes maintenance jobs such as the overdue sweep.
var SystemActor = Actor{ID: "system", Name: "Fee Scheduler", Role: "system"}
