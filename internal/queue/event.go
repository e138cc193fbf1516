// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// AuthEventsQueue is the durable queue receiving authentication events.
const AuthEventsQueue = "auth.events"

// AuthEventKind names what happened.
type AuthEventKind string

const (
	EventLoginSucceeded  AuthEventKind = "login.succeeded"
	EventLoginFailed     AuthEventKind = "login.failed"
	EventLoginDisabled   AuthEventKind = "login.disabled"
	EventLogout          AuthEventKind = "logout"
	EventPasswordChanged AuthEventKind = "password.changed"
	EventTokensRevoked   AuthEventKind = "tokens.revoked"
)

// AuthEvent is published after an authentication state change.  It never
// carries a password or a raw token.
type AuthEvent struct {
	Kind       AuthEventKind `json:"kind"`
	Username   string        `json:"username"`
	Detail     string        `json:"detail,omitempty"`
	OccurredAt string        `json:"occurred_at"`
}

// NewAuthEvent stamps an event with the current UTC time.
func NewAuthEvent(kind AuthEventKind, username, detail string) AuthEvent {
	return AuthEvent{
		Kind:       kind,
		Username:   username,
		Detail:     detail,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
