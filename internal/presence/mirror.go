package presence

import "context"

// Mirror publishes presence outside the process so other nodes (and the
// search endpoint) can see who is online. The Registry stays authoritative
// for delivery; a mirror failure never blocks routing.
type Mirror interface {
	Online(ctx context.Context, identity string) error
	Offline(ctx context.Context, identity string) error
	IsOnline(ctx context.Context, identity string) (bool, error)
}

// NopMirror is used when no Redis is configured.
type NopMirror struct{}

func (NopMirror) Online(context.Context, string) error           { return nil }
func (NopMirror) Offline(context.Context, string) error          { return nil }
func (NopMirror) IsOnline(context.Context, string) (bool, error) { return false, nil }
