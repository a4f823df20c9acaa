// ABOUTME: Pure expiry predicate deciding whether a conversation is still usable
// ABOUTME: Compares time since last activity against the configured threshold

package lifecycle

import (
	"time"

	"github.com/edouardpoitras/eva-conversations/internal/store"
)

// Expired reports whether conv can no longer accept interactions and must be
// replaced. A nil conversation counts as expired (forces creation), as does
// an explicitly closed one. Otherwise the conversation is expired iff the
// time since its last activity is at least ttl. Last activity is the
// OpenedAt of the most recent interaction, or the conversation's own
// OpenedAt when it has no interactions yet.
//
// Pure function, no side effects. The boundary is inclusive: elapsed == ttl
// is expired.
func Expired(conv *store.Conversation, now time.Time, ttl time.Duration) bool {
	if conv == nil {
		return true
	}
	if conv.ClosedAt != nil {
		return true
	}

	last := conv.OpenedAt
	if inter := conv.CurrentInteraction(); inter != nil {
		last = inter.OpenedAt
	}
	return now.Sub(last) >= ttl
}
