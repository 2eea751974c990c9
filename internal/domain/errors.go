package domain

import "errors"

var (
	// ErrConfiguration covers unknown action types, malformed rules and
	// missing required parameters. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransientIO marks outbound failures (timeouts, network) that a
	// handler retries once before reporting failure.
	ErrTransientIO = errors.New("transient io error")

	// ErrPersistence is returned when the store is unavailable while
	// recording an outcome.
	ErrPersistence = errors.New("persistence error")

	ErrNotFound     = errors.New("not found")
	ErrRuleInactive = errors.New("rule is not active")
	ErrForbidden    = errors.New("forbidden")
)
