package interaction

import "context"

// EventKind enumerates the interaction events recorded by the sink.
type EventKind string

const (
	EventLoginSuccess        EventKind = "login.success"
	EventLoginFailure        EventKind = "login.failure"
	EventLogoutSuccess       EventKind = "logout.success"
	EventAuthorizationDenied EventKind = "authorization.denied"
)

// Event is one interaction audit record.
type Event struct {
	Kind        EventKind
	SubjectID   string
	Username    string
	DisplayName string
	ClientID    string
	Reason      string
}

// EventSink receives interaction events. Record is fire-and-forget: the sink
// must be safe for concurrent writers and must never block or fail the
// interaction outcome. Events for one interaction are recorded before its
// outcome is returned.
type EventSink interface {
	Record(ctx context.Context, event Event)
}
