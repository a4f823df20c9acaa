// ABOUTME: Responder plugin registry and request dispatch
// ABOUTME: Gives the follow-up candidate first refusal, then consults responders in registration order

package server

import (
	"context"

	"github.com/edouardpoitras/eva-conversations/internal/lifecycle"
)

// Request is what a responder sees for one incoming interaction.
type Request struct {
	// InputText is the interaction's current input text, after any input
	// alterations recorded so far.
	InputText string

	// FollowUp is true when this responder answered the previous
	// interaction and is being offered first refusal.
	FollowUp bool
}

// Reply is a responder's claim on a request.
type Reply struct {
	// Text is the response text recorded on the interaction.
	Text string

	// Done signals that the conversation is finished: no follow-up is
	// expected and the conversation is closed after this interaction.
	Done bool
}

// Responder handles user requests routed through the conversation pipeline.
// Returning a nil Reply declines the request, passing it to the next
// responder.
type Responder interface {
	ID() string
	Respond(ctx context.Context, req *Request) (*Reply, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc struct {
	PluginID string
	Fn       func(ctx context.Context, req *Request) (*Reply, error)
}

// ID returns the plugin id.
func (r ResponderFunc) ID() string { return r.PluginID }

// Respond invokes the wrapped function.
func (r ResponderFunc) Respond(ctx context.Context, req *Request) (*Reply, error) {
	return r.Fn(ctx, req)
}

// dispatch offers the request to the follow-up candidate first, then to the
// remaining responders in registration order. Returns the claiming responder
// and its reply, or nil when nothing claimed the request.
func (s *Server) dispatch(ctx context.Context, turn *lifecycle.Turn) (Responder, *Reply) {
	req := &Request{InputText: turn.Interaction.InputText}

	if candidate, ok := s.byID[turn.FollowUpPluginID]; ok {
		reply := s.ask(ctx, candidate, &Request{InputText: req.InputText, FollowUp: true})
		if reply != nil {
			return candidate, reply
		}
	}

	for _, r := range s.responders {
		if r.ID() == turn.FollowUpPluginID {
			continue // already had its chance
		}
		if reply := s.ask(ctx, r, req); reply != nil {
			return r, reply
		}
	}
	return nil, nil
}

// ask invokes one responder, treating an error as a decline.
func (s *Server) ask(ctx context.Context, r Responder, req *Request) *Reply {
	reply, err := r.Respond(ctx, req)
	if err != nil {
		s.logger.Error("responder failed",
			"plugin_id", r.ID(),
			"error", err)
		return nil
	}
	return reply
}
