package session

import "errors"

var (
	// ErrPermissionDenied is returned when a non-owner attempts an owner-only action.
	ErrPermissionDenied = errors.New("session: permission denied")
	// ErrInvalidProviderResponse means the provider answered without a session id, stream key or playback id.
	ErrInvalidProviderResponse = errors.New("session: invalid provider response")
	// ErrProviderUnavailable wraps transport failures and unexpected provider statuses.
	ErrProviderUnavailable = errors.New("session: provider unavailable")
	// ErrInvalidState is returned when an action does not apply to the current state.
	ErrInvalidState = errors.New("session: invalid state for operation")
	// ErrInProgress is returned when the same kind of operation is already running.
	ErrInProgress = errors.New("session: operation in progress")
	// ErrSuperseded means a provider response arrived for a session that was stopped or replaced.
	ErrSuperseded = errors.New("session: superseded")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("session: already open")
	// ErrClosed is returned by every operation after Close, including calls that were in flight.
	ErrClosed = errors.New("session: closed")
)
