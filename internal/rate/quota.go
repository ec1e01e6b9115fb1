package rate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tier selects which quota applies to a request.
type Tier int

const (
	TierAnonymous Tier = iota
	TierAuthenticated
	TierElevated
)

func (t Tier) String() string {
	switch t {
	case TierAnonymous:
		return "anonymous"
	case TierAuthenticated:
		return "authenticated"
	case TierElevated:
		return "elevated"
	default:
		return "unknown"
	}
}

// Quota is a parsed "N/period" budget, e.g. "100/1m".
type Quota struct {
	Limit  int
	Window time.Duration
}

// ParseQuota parses quota strings of the form "N/period", where period is a
// [time.ParseDuration] literal ("30s", "1m", "1h").
func ParseQuota(s string) (Quota, error) {
	limitPart, windowPart, found := strings.Cut(s, "/")
	if !found {
		return Quota{}, fmt.Errorf("%w: %q", ErrInvalidQuota, s)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(limitPart))
	if err != nil || limit <= 0 {
		return Quota{}, fmt.Errorf("%w: %q", ErrInvalidQuota, s)
	}

	window, err := time.ParseDuration(strings.TrimSpace(windowPart))
	if err != nil || window <= 0 {
		return Quota{}, fmt.Errorf("%w: %q", ErrInvalidQuota, s)
	}

	return Quota{Limit: limit, Window: window}, nil
}
