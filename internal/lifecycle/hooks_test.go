// ABOUTME: Tests for the typed hook bus
// ABOUTME: Verifies registration order, kind isolation, and event payloads

package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edouardpoitras/eva-conversations/internal/store"
)

func TestHooks_FireInRegistrationOrder(t *testing.T) {
	h := NewHooks(nil)

	var order []string
	h.Register(HookPostCreateInteraction, func(ctx context.Context, ev Event) {
		order = append(order, "first")
	})
	h.Register(HookPostCreateInteraction, func(ctx context.Context, ev Event) {
		order = append(order, "second")
	})
	h.Register(HookPostCreateInteraction, func(ctx context.Context, ev Event) {
		order = append(order, "third")
	})

	h.Fire(context.Background(), Event{Kind: HookPostCreateInteraction})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestHooks_KindIsolation(t *testing.T) {
	h := NewHooks(nil)

	var fired []HookKind
	h.Register(HookPreNewConversation, func(ctx context.Context, ev Event) {
		fired = append(fired, ev.Kind)
	})
	h.Register(HookPostCloseConversation, func(ctx context.Context, ev Event) {
		fired = append(fired, ev.Kind)
	})

	h.Fire(context.Background(), Event{Kind: HookPreNewConversation})
	assert.Equal(t, []HookKind{HookPreNewConversation}, fired)
}

func TestHooks_EventPayload(t *testing.T) {
	h := NewHooks(nil)

	conv := &store.Conversation{ID: "c1"}
	inter := &store.Interaction{ID: "i1"}

	var got Event
	h.Register(HookFollowUp, func(ctx context.Context, ev Event) {
		got = ev
	})
	h.Fire(context.Background(), Event{
		Kind:             HookFollowUp,
		Conversation:     conv,
		Interaction:      inter,
		FollowUpPluginID: "weather",
	})

	assert.Equal(t, conv, got.Conversation)
	assert.Equal(t, inter, got.Interaction)
	assert.Equal(t, "weather", got.FollowUpPluginID)
}

func TestHooks_NoCallbacks(t *testing.T) {
	h := NewHooks(nil)
	// Must not panic
	h.Fire(context.Background(), Event{Kind: HookPreCloseInteraction})
}

func TestHookKind_String(t *testing.T) {
	assert.Equal(t, "pre_new_conversation", HookPreNewConversation.String())
	assert.Equal(t, "follow_up", HookFollowUp.String())
	assert.Equal(t, "post_close_conversation", HookPostCloseConversation.String())
}
