// Package server exposes the conversation lifecycle over HTTP.
//
// # Pipeline
//
// POST /api/interactions runs one request end to end:
//
//  1. Begin opens (or replaces) the conversation and its interaction
//  2. Registered responders are consulted; the follow-up candidate from the
//     previous interaction gets first refusal
//  3. The claiming responder's text is recorded as an output alteration
//  4. The interaction closes; the conversation too when the responder
//     signals Done
//
// A storage failure during close does not fail the request: the response
// text is still delivered with "persisted": false.
//
// # Browsing
//
// GET /api/conversations lists recent conversations;
// GET /api/conversations/{id} returns one full document with its embedded
// interactions and alterations. GET /health reports liveness.
//
// # Responders
//
// Responders are this system's plugins: named handlers registered at
// startup. A responder declines by returning a nil Reply, passing the
// request along the registration order.
package server
