// ABOUTME: Store interface and data types for eva-conversations persistence
// ABOUTME: Defines Conversation, Interaction, TextAlteration and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("not found")

// TextAlteration records one rewrite of an interaction's input or output text.
// Alterations are immutable once appended; list order is chronological.
type TextAlteration struct {
	NewText  string `json:"new_text"`
	PluginID string `json:"plugin_id"`
}

// Interaction is a single request/response exchange within a conversation.
// Exactly one interaction per conversation is open at a time (the most
// recently appended one, until closed). ClosedAt is set exactly once.
type Interaction struct {
	ID                 string           `json:"id"`
	OpenedAt           time.Time        `json:"opened_at"`
	InputText          string           `json:"input_text,omitempty"`
	InputAudio         []byte           `json:"input_audio,omitempty"`
	InputAlterations   []TextAlteration `json:"input_text_alterations,omitempty"`
	OutputText         string           `json:"output_text,omitempty"`
	OutputAudio        []byte           `json:"output_audio,omitempty"`
	OutputAlterations  []TextAlteration `json:"output_text_alterations,omitempty"`
	RespondingPluginID string           `json:"responding_plugin_id,omitempty"`
	ClosedAt           *time.Time       `json:"closed_at,omitempty"`
}

// Open reports whether the interaction has not been closed yet.
func (i *Interaction) Open() bool {
	return i.ClosedAt == nil
}

// AddInputAlteration appends an input rewrite and updates InputText.
func (i *Interaction) AddInputAlteration(newText, pluginID string) {
	i.InputAlterations = append(i.InputAlterations, TextAlteration{NewText: newText, PluginID: pluginID})
	i.InputText = newText
}

// AddOutputAlteration appends an output rewrite and updates OutputText.
// When responding is true the plugin also claims the response, recording
// itself as the responder. Pass false to rewrite another plugin's response
// without claiming it.
func (i *Interaction) AddOutputAlteration(newText, pluginID string, responding bool) {
	i.OutputAlterations = append(i.OutputAlterations, TextAlteration{NewText: newText, PluginID: pluginID})
	i.OutputText = newText
	if responding {
		i.RespondingPluginID = pluginID
	}
}

// Conversation is an ordered, append-only collection of interactions bounded
// by an open/close lifecycle. A closed conversation is never reopened; a new
// one is created instead.
//
// FollowUpPluginID names the plugin entitled to first refusal on the next
// interaction. It is transient state rebuilt from the last interaction's
// responder and is never persisted.
type Conversation struct {
	ID               string         `json:"id"`
	OpenedAt         time.Time      `json:"opened_at"`
	Interactions     []*Interaction `json:"interactions"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`
	FollowUpPluginID string         `json:"-"`
}

// CurrentInteraction returns the most recently appended interaction, or nil
// when the conversation has none yet.
func (c *Conversation) CurrentInteraction() *Interaction {
	if len(c.Interactions) == 0 {
		return nil
	}
	return c.Interactions[len(c.Interactions)-1]
}

// Open reports whether the conversation has not been closed yet.
func (c *Conversation) Open() bool {
	return c.ClosedAt == nil
}

// ConversationSummary is the listing view of a stored conversation, without
// the embedded interaction document.
type ConversationSummary struct {
	ID           string
	OpenedAt     time.Time
	ClosedAt     *time.Time
	Interactions int
}

// Store defines the interface for conversation persistence. Conversations
// are stored as whole documents: each save replaces the full aggregate
// (conversation plus embedded interactions and alterations). Interactions
// are never independently addressable.
type Store interface {
	// SaveConversation inserts or replaces the whole conversation document.
	SaveConversation(ctx context.Context, conv *Conversation) error

	// GetConversation loads one conversation by id.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// LatestOpenConversation returns the most recently opened conversation
	// without a close timestamp, for process start/recovery.
	LatestOpenConversation(ctx context.Context) (*Conversation, error)

	// ListConversations returns recent conversations, newest first.
	ListConversations(ctx context.Context, limit int) ([]*ConversationSummary, error)

	// Close releases any resources held by the store
	Close() error
}
