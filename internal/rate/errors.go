package rate

import "errors"

var (
	// ErrInvalidQuota reports a quota string that does not parse as "N/period".
	ErrInvalidQuota = errors.New("invalid quota")
	// ErrWindowMismatch reports tier quotas that disagree on the window length.
	ErrWindowMismatch = errors.New("tier windows must match")
)
