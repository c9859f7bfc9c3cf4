package model

type SessionStatus string

const (
	SessionStatusInitializing  SessionStatus = "INITIALIZING"
	SessionStatusCodeReady     SessionStatus = "CODE_READY"
	SessionStatusAuthenticated SessionStatus = "AUTHENTICATED"
	SessionStatusReady         SessionStatus = "READY"
	SessionStatusAuthFailed    SessionStatus = "AUTH_FAILED"
	SessionStatusDisconnected  SessionStatus = "DISCONNECTED"
	SessionStatusError         SessionStatus = "ERROR"
	// SessionStatusNotFound is never stored; it is the status reported for unknown ids.
	SessionStatusNotFound SessionStatus = "NOT_FOUND"
)

// IsTerminal reports whether no further transitions may leave the status.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusAuthFailed, SessionStatusDisconnected, SessionStatusError:
		return true
	}
	return false
}

// EngineEventType names the lifecycle events emitted by the automation engine.
type EngineEventType string

const (
	EngineEventCodeReady     EngineEventType = "code_ready"
	EngineEventAuthenticated EngineEventType = "authenticated"
	EngineEventReady         EngineEventType = "ready"
	EngineEventAuthFailure   EngineEventType = "auth_failure"
	EngineEventDisconnected  EngineEventType = "disconnected"
)

func (t EngineEventType) Valid() bool {
	switch t {
	case EngineEventCodeReady, EngineEventAuthenticated, EngineEventReady,
		EngineEventAuthFailure, EngineEventDisconnected:
		return true
	}
	return false
}
