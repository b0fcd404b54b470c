package models

import "errors"

// Sentinel errors shared across the registry, guardrails, and alert
// packages. Callers match them with errors.Is after wrapping.
var (
	// ErrNotFound means the referenced device, alert, or action id does
	// not exist (now or ever).
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIP means a device with the same IP already exists in
	// the registry.
	ErrDuplicateIP = errors.New("duplicate ip")

	// ErrInvalidSpec means a device create/update payload failed
	// validation before any persistence was attempted.
	ErrInvalidSpec = errors.New("invalid device spec")

	// ErrAlreadyResolved means a confirm or cancel arrived after the
	// action already reached a terminal state.
	ErrAlreadyResolved = errors.New("action already resolved")

	// ErrExpired means a confirm or cancel arrived after the action's
	// TTL elapsed. Distinct from ErrNotFound so callers can tell "too
	// late" from "never existed".
	ErrExpired = errors.New("action expired")

	// ErrBlocked means the command matched the denylist and can never
	// execute, confirmed or not.
	ErrBlocked = errors.New("command blocked")
)
