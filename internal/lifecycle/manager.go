// ABOUTME: Lifecycle Manager owning the process-wide current conversation
// ABOUTME: Creates, expires and closes conversations/interactions, firing hooks in order

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edouardpoitras/eva-conversations/internal/store"
)

// Protocol-violation errors, returned when a collaborator calls an operation
// out of sequence. State is left unchanged in every case.
var (
	// ErrNoOpenInteraction is returned when an operation requires an open
	// interaction and none exists.
	ErrNoOpenInteraction = errors.New("no open interaction")

	// ErrInteractionOpen is returned when closing a conversation while an
	// interaction is still open.
	ErrInteractionOpen = errors.New("interaction still open")

	// ErrNoConversation is returned when closing a conversation and none is
	// current.
	ErrNoConversation = errors.New("no current conversation")
)

const (
	// persistTimeout bounds each storage call.
	persistTimeout = 5 * time.Second

	// DefaultExpiry is the conversation expiry threshold used when the
	// configuration does not set one.
	DefaultExpiry = 60 * time.Second
)

// ConversationStore defines what the manager needs from storage.
type ConversationStore interface {
	SaveConversation(ctx context.Context, conv *store.Conversation) error
	LatestOpenConversation(ctx context.Context) (*store.Conversation, error)
}

// Turn is the handle returned by Begin, exposing the current conversation
// and its newly opened interaction to the request-handling pipeline.
type Turn struct {
	Conversation     *store.Conversation
	Interaction      *store.Interaction
	FollowUpPluginID string
}

// Manager orchestrates the conversation lifecycle. It holds the only
// reference to the process-wide current conversation and rebinds it on every
// expiry or creation. All operations are serialized by an internal mutex
// covering each operation end to end; the intended deployment handles one
// in-flight request at a time.
type Manager struct {
	store  ConversationStore
	hooks  *Hooks
	expiry time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex // held across each operation end to end
	current *store.Conversation
}

// NewManager creates a lifecycle manager. expiry must be positive; a
// non-positive threshold is a configuration error reported here, at startup,
// never at call time. Pass nil logger for default.
func NewManager(st ConversationStore, hooks *Hooks, expiry time.Duration, logger *slog.Logger) (*Manager, error) {
	if expiry <= 0 {
		return nil, fmt.Errorf("conversation expiry must be positive, got %s", expiry)
	}
	if hooks == nil {
		hooks = NewHooks(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  st,
		hooks:  hooks,
		expiry: expiry,
		logger: logger.With("component", "lifecycle"),
		now:    time.Now,
	}
	return m, nil
}

// Resume adopts the most recently opened conversation still marked open in
// storage as the current conversation. Called once at process start; a clean
// store is not an error.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.store.LatestOpenConversation(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading current conversation: %w", err)
	}

	m.current = conv
	if inter := conv.CurrentInteraction(); inter != nil {
		// Follow-up state is transient; rebuild it from the last responder
		// so a restart inside the expiry window keeps routing intact.
		conv.FollowUpPluginID = inter.RespondingPluginID
	}
	m.logger.Info("resumed conversation",
		"conversation_id", conv.ID,
		"interactions", len(conv.Interactions))
	return nil
}

// Begin starts a new interaction for an incoming request. If the current
// conversation is expired (or none exists), a replacement is created first.
// The input payload is recorded on the interaction along with a seed input
// alteration attributed to no plugin.
//
// Hooks fire in the fixed order: pre/post new-conversation (only when one is
// created), pre/post create-interaction, then follow_up carrying the
// candidate plugin id for this request.
func (m *Manager) Begin(ctx context.Context, inputText string, inputAudio []byte) (*Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if Expired(m.current, now, m.expiry) {
		if m.current != nil {
			m.logger.Info("conversation expired",
				"conversation_id", m.current.ID,
				"expiry", m.expiry)
		}
		m.hooks.Fire(ctx, Event{Kind: HookPreNewConversation})
		conv := &store.Conversation{
			ID:       uuid.New().String(),
			OpenedAt: now,
		}
		// Persist immediately so recovery queries already see this
		// conversation as current.
		if err := m.persist(ctx, conv); err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		m.current = conv
		m.hooks.Fire(ctx, Event{Kind: HookPostNewConversation, Conversation: conv})
		m.logger.Info("conversation created", "conversation_id", conv.ID)
	}

	conv := m.current

	m.hooks.Fire(ctx, Event{Kind: HookPreCreateInteraction, Conversation: conv})
	inter := &store.Interaction{
		ID:         uuid.New().String(),
		OpenedAt:   now,
		InputText:  inputText,
		InputAudio: inputAudio,
	}
	if inputText != "" {
		inter.AddInputAlteration(inputText, "")
	}
	conv.Interactions = append(conv.Interactions, inter)
	if err := m.persist(ctx, conv); err != nil {
		// The appended interaction stays in memory; the aborted request's
		// interaction is superseded by expiry on a later request.
		return nil, fmt.Errorf("creating interaction: %w", err)
	}
	m.hooks.Fire(ctx, Event{Kind: HookPostCreateInteraction, Conversation: conv, Interaction: inter})
	m.logger.Debug("interaction created",
		"conversation_id", conv.ID,
		"interaction_id", inter.ID)

	candidate := FollowUp(conv, now, m.expiry)
	m.hooks.Fire(ctx, Event{
		Kind:             HookFollowUp,
		Conversation:     conv,
		Interaction:      inter,
		FollowUpPluginID: candidate,
	})

	return &Turn{
		Conversation:     conv,
		Interaction:      inter,
		FollowUpPluginID: candidate,
	}, nil
}

// RecordInputAlteration appends an input rewrite to the open interaction and
// updates its InputText. Returns ErrNoOpenInteraction when no interaction is
// open.
func (m *Manager) RecordInputAlteration(ctx context.Context, newText, pluginID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inter, err := m.openInteraction()
	if err != nil {
		return err
	}
	inter.AddInputAlteration(newText, pluginID)
	m.logger.Debug("input altered", "interaction_id", inter.ID, "plugin_id", pluginID)
	return nil
}

// RecordOutputAlteration appends an output rewrite to the open interaction
// and updates its OutputText. When responding is true, pluginID is recorded
// as the interaction's responder; pass false to rewrite a response compiled
// by another plugin without claiming it. Returns ErrNoOpenInteraction when
// no interaction is open.
func (m *Manager) RecordOutputAlteration(ctx context.Context, newText, pluginID string, responding bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inter, err := m.openInteraction()
	if err != nil {
		return err
	}
	inter.AddOutputAlteration(newText, pluginID, responding)
	m.logger.Debug("output altered",
		"interaction_id", inter.ID,
		"plugin_id", pluginID,
		"responding", responding)
	return nil
}

// SetResponder records pluginID as the open interaction's responder.
func (m *Manager) SetResponder(ctx context.Context, pluginID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inter, err := m.openInteraction()
	if err != nil {
		return err
	}
	inter.RespondingPluginID = pluginID
	return nil
}

// SetOutputAudio attaches synthesized response audio to the open
// interaction.
func (m *Manager) SetOutputAudio(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inter, err := m.openInteraction()
	if err != nil {
		return err
	}
	inter.OutputAudio = data
	return nil
}

// CloseInteraction closes the open interaction and persists the
// conversation. The pre-close hook fires while ClosedAt is still unset; the
// post-close hook fires once every field is final. The conversation's
// follow-up candidate becomes the interaction's responder, or is cleared
// when nothing responded.
//
// Returns ErrNoOpenInteraction when no interaction is open. A storage
// failure is surfaced after one retry; the in-memory close stands so a
// higher level can re-attempt persistence.
func (m *Manager) CloseInteraction(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inter, err := m.openInteraction()
	if err != nil {
		return err
	}
	conv := m.current

	m.hooks.Fire(ctx, Event{Kind: HookPreCloseInteraction, Conversation: conv, Interaction: inter})

	closed := m.now()
	inter.ClosedAt = &closed
	conv.FollowUpPluginID = inter.RespondingPluginID

	m.hooks.Fire(ctx, Event{Kind: HookPostCloseInteraction, Conversation: conv, Interaction: inter})

	if err := m.persist(ctx, conv); err != nil {
		return fmt.Errorf("closing interaction: %w", err)
	}
	m.logger.Debug("interaction closed",
		"conversation_id", conv.ID,
		"interaction_id", inter.ID,
		"responding_plugin_id", inter.RespondingPluginID)
	return nil
}

// CloseConversation closes the current conversation and unsets it. Only
// legal when no interaction is open: returns ErrNoConversation when nothing
// is current and ErrInteractionOpen when the last interaction has not been
// closed, leaving all state unchanged.
func (m *Manager) CloseConversation(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.current
	if conv == nil {
		return ErrNoConversation
	}
	if inter := conv.CurrentInteraction(); inter != nil && inter.Open() {
		return ErrInteractionOpen
	}

	m.hooks.Fire(ctx, Event{Kind: HookPreCloseConversation, Conversation: conv})

	closed := m.now()
	conv.ClosedAt = &closed
	conv.FollowUpPluginID = ""

	m.hooks.Fire(ctx, Event{Kind: HookPostCloseConversation, Conversation: conv})

	if err := m.persist(ctx, conv); err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}
	m.current = nil
	m.logger.Info("conversation closed", "conversation_id", conv.ID)
	return nil
}

// Current returns the current conversation, or nil. Exposed for the API
// surface; callers must not mutate it.
func (m *Manager) Current() *store.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// openInteraction returns the current conversation's open interaction.
// Must be called with the manager lock held.
func (m *Manager) openInteraction() (*store.Interaction, error) {
	if m.current == nil {
		return nil, ErrNoOpenInteraction
	}
	inter := m.current.CurrentInteraction()
	if inter == nil || !inter.Open() {
		return nil, ErrNoOpenInteraction
	}
	return inter, nil
}

// persist saves the conversation with a bounded timeout and a single retry.
// Losing a save means the stored record no longer reflects reality, so a
// persistent failure is returned to the caller rather than swallowed.
func (m *Manager) persist(ctx context.Context, conv *store.Conversation) error {
	saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	err := m.store.SaveConversation(saveCtx, conv)
	if err == nil {
		return nil
	}
	m.logger.Warn("save failed, retrying",
		"conversation_id", conv.ID,
		"error", err)

	retryCtx, cancelRetry := context.WithTimeout(ctx, persistTimeout)
	defer cancelRetry()

	if err := m.store.SaveConversation(retryCtx, conv); err != nil {
		m.logger.Error("save failed after retry",
			"conversation_id", conv.ID,
			"error", err)
		return fmt.Errorf("saving conversation %s: %w", conv.ID, err)
	}
	return nil
}
