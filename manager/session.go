package manager

// SessionState enumerates the lifecycle a session moves through at this
// manager tier.
type SessionState int

const (
	// SessionAbsent means the session id has never been created at this
	// tier.
	SessionAbsent SessionState = iota
	// SessionCreated means CreateSession succeeded but DeploySession has
	// not run yet.
	SessionCreated
	// SessionDeployed means DeploySession has completed.
	SessionDeployed
	// SessionDestroyed is terminal: DestroySession has run for this id.
	SessionDestroyed
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionDeployed:
		return "deployed"
	case SessionDestroyed:
		return "destroyed"
	default:
		return "absent"
	}
}
