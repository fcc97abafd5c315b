// Package domain defines the admission decision every generation request
// passes through. Authorize never returns an error: callers always get a
// Decision, and anything that prevents a trustworthy answer comes back as a
// system-unavailable denial rather than an unmetered allow.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Reason string

const (
	ReasonNoActiveSubscription Reason = "no_active_subscription"
	ReasonQuotaExceeded        Reason = "quota_exceeded"
	ReasonSystemUnavailable    Reason = "system_unavailable"
)

// Decision is the gate verdict. Remaining is the post-increment headroom for
// allows, -1 when the plan is unlimited.
type Decision struct {
	Allowed   bool
	Remaining int64
	Reason    Reason
}

func Allow(remaining int64) Decision {
	return Decision{Allowed: true, Remaining: remaining}
}

func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

type Service interface {
	// Authorize consumes one quota unit when it allows. A denial never
	// mutates anything.
	Authorize(ctx context.Context, accountID snowflake.ID) Decision
}
