// ABOUTME: Synchronous typed hook bus for conversation lifecycle notifications
// ABOUTME: Closed set of hook kinds fired in registration order at documented points

package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"github.com/edouardpoitras/eva-conversations/internal/store"
)

// HookKind identifies one of the fixed lifecycle notification points. The
// set is closed: collaborators register against these tags rather than
// arbitrary string-keyed triggers.
type HookKind int

const (
	// HookPreNewConversation fires before a replacement conversation is
	// constructed. Event.Conversation is nil.
	HookPreNewConversation HookKind = iota

	// HookPostNewConversation fires once the new conversation exists and has
	// been adopted as current.
	HookPostNewConversation

	// HookPreCreateInteraction fires before an interaction is appended.
	// Event.Interaction is nil.
	HookPreCreateInteraction

	// HookPostCreateInteraction fires with the newly opened interaction.
	HookPostCreateInteraction

	// HookFollowUp fires first in the request-handling phase, carrying the
	// follow-up candidate plugin id (possibly empty). Any collaborator may
	// claim the request by producing output text.
	HookFollowUp

	// HookPreCloseInteraction fires before ClosedAt is set; OutputAudio and
	// ClosedAt are still unset on the interaction at this point.
	HookPreCloseInteraction

	// HookPostCloseInteraction fires once every interaction field is final.
	HookPostCloseInteraction

	// HookPreCloseConversation fires before the conversation's ClosedAt is
	// set.
	HookPreCloseConversation

	// HookPostCloseConversation fires after the conversation is closed and
	// its follow-up candidate cleared.
	HookPostCloseConversation
)

// String returns the hook name used in logs.
func (k HookKind) String() string {
	switch k {
	case HookPreNewConversation:
		return "pre_new_conversation"
	case HookPostNewConversation:
		return "post_new_conversation"
	case HookPreCreateInteraction:
		return "pre_create_interaction"
	case HookPostCreateInteraction:
		return "post_create_interaction"
	case HookFollowUp:
		return "follow_up"
	case HookPreCloseInteraction:
		return "pre_close_interaction"
	case HookPostCloseInteraction:
		return "post_close_interaction"
	case HookPreCloseConversation:
		return "pre_close_conversation"
	case HookPostCloseConversation:
		return "post_close_conversation"
	default:
		return "unknown"
	}
}

// Event carries the state visible to a hook callback. Field availability
// depends on the kind: see the HookKind constants for what is and is not
// set at each point.
type Event struct {
	Kind             HookKind
	Conversation     *store.Conversation
	Interaction      *store.Interaction
	FollowUpPluginID string
}

// HookFunc is a lifecycle notification callback. Callbacks run synchronously
// on the request path; a slow callback delays the request.
type HookFunc func(ctx context.Context, ev Event)

// Hooks is an ordered registry of lifecycle callbacks. Callbacks for a kind
// fire in registration order and are never reordered or parallelized, since
// the documented field visibility of each hook depends on the fixed
// sequence.
type Hooks struct {
	mu        sync.RWMutex
	callbacks map[HookKind][]HookFunc
	logger    *slog.Logger
}

// NewHooks creates an empty hook registry. Pass nil logger for default.
func NewHooks(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		callbacks: make(map[HookKind][]HookFunc),
		logger:    logger.With("component", "hooks"),
	}
}

// Register appends fn to the callback list for kind.
func (h *Hooks) Register(kind HookKind, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks[kind] = append(h.callbacks[kind], fn)
}

// Fire invokes every callback registered for ev.Kind, in registration order.
func (h *Hooks) Fire(ctx context.Context, ev Event) {
	h.mu.RLock()
	fns := h.callbacks[ev.Kind]
	h.mu.RUnlock()

	if len(fns) == 0 {
		return
	}

	h.logger.Debug("firing hook", "hook", ev.Kind.String(), "callbacks", len(fns))
	for _, fn := range fns {
		fn(ctx, ev)
	}
}
