package model

// SessionState of the single device connection.
type SessionState string

const (
	StateDisconnected   SessionState = "DISCONNECTED"
	StateConnecting     SessionState = "CONNECTING"
	StateAuthenticating SessionState = "AUTHENTICATING"
	StateAuthenticated  SessionState = "AUTHENTICATED"
	StateFailed         SessionState = "FAILED"
)

// Active reports whether a connection attempt or a live connection exists.
func (s SessionState) Active() bool {
	switch s {
	case StateConnecting, StateAuthenticating, StateAuthenticated:
		return true
	}
	return false
}

// Status is what the session reports to its listener.
// Reason is set only for FAILED, Message is a human readable one-liner.
type Status struct {
	State   SessionState `json:"state"`
	Reason  string       `json:"reason,omitempty"`
	Message string       `json:"message"`
}
