// ABOUTME: Advisory follow-up routing for incoming requests
// ABOUTME: Surfaces the last responder as first-refusal candidate while the conversation lives

package lifecycle

import (
	"time"

	"github.com/edouardpoitras/eva-conversations/internal/store"
)

// FollowUp returns the plugin id entitled to first refusal on the next
// incoming request: the conversation's follow-up plugin, iff the
// conversation is still live per Expired and the field is set. Returns ""
// otherwise.
//
// Routing is advisory and has no side effects. The Manager maintains the
// follow-up field itself: after an interaction closes with a responder
// recorded, the responder becomes the candidate for the next request; when
// nothing responded, the candidate is cleared.
func FollowUp(conv *store.Conversation, now time.Time, ttl time.Duration) string {
	if Expired(conv, now, ttl) {
		return ""
	}
	return conv.FollowUpPluginID
}
