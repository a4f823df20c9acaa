// Package lifecycle groups request/response exchanges into time-bounded
// conversations and routes follow-up requests to the plugin that answered
// last.
//
// # Overview
//
// The package has four pieces:
//
//   - Expired: pure predicate deciding whether a conversation is still
//     usable or must be replaced
//   - FollowUp: advisory routing of an incoming request to the previous
//     responder while the conversation lives
//   - Hooks: a closed set of typed lifecycle notifications fired
//     synchronously at documented points
//   - Manager: the orchestrator owning the process-wide current
//     conversation
//
// # Request Flow
//
// The host pipeline calls, per request, in order:
//
//  1. Begin: expires/creates the conversation, opens an interaction, and
//     fires the follow_up hook with the first-refusal candidate
//  2. RecordInputAlteration / RecordOutputAlteration / SetResponder /
//     SetOutputAudio, as plugins handle the request
//  3. CloseInteraction: finalizes the interaction and persists the
//     conversation document
//  4. CloseConversation, only when the handling plugin signals the
//     conversation is finished
//
// Calling a close operation out of sequence is a protocol violation: the
// call fails with a sentinel error and state is unchanged, so a misbehaving
// plugin is diagnosable.
//
// # Expiry
//
// A conversation expires when the time since its last interaction's open
// reaches the configured threshold. Expiry never closes the old
// conversation: it stays open in storage and "current" simply moves to the
// replacement.
//
// # Hook Ordering
//
// All hooks for a request fire in a fixed sequence (pre/post
// new-conversation, pre/post create-interaction, follow_up, pre/post
// close-interaction, pre/post close-conversation). Each hook's documented
// field visibility depends on this order, so callbacks are never reordered
// or run in parallel.
package lifecycle
