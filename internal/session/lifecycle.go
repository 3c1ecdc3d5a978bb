// Package session binds live connections to user identities.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lalith-99/dmstream/internal/apperr"
	"github.com/lalith-99/dmstream/internal/presence"
	"go.uber.org/zap"
)

// State of a single connection. There is no way out of Closed: a reconnect
// is a new connection.
type State int

const (
	StateAnonymous State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type binding struct {
	state    State
	identity string
	// authIdentity is set when the transport authenticated the connection
	// with a token; announcements must then match it.
	authIdentity string
}

// Lifecycle owns connection -> identity bindings and is the only writer of
// the Registry.
type Lifecycle struct {
	registry      *presence.Registry
	mirror        presence.Mirror
	mirrorTimeout time.Duration
	logger        *zap.Logger

	mu    sync.Mutex
	conns map[presence.Conn]*binding
}

func NewLifecycle(registry *presence.Registry, mirror presence.Mirror, logger *zap.Logger) *Lifecycle {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &Lifecycle{
		registry:      registry,
		mirror:        mirror,
		mirrorTimeout: 2 * time.Second,
		logger:        logger,
		conns:         make(map[presence.Conn]*binding),
	}
}

// Open starts tracking conn in the anonymous state. authIdentity may be
// empty for unauthenticated transports.
func (l *Lifecycle) Open(conn presence.Conn, authIdentity string) {
	l.mu.Lock()
	l.conns[conn] = &binding{state: StateAnonymous, authIdentity: authIdentity}
	l.mu.Unlock()

	l.logger.Debug("connection opened",
		zap.String("conn_id", conn.ID()),
		zap.String("auth_identity", authIdentity))
}

// Announce binds conn to identity and registers it as the live route for
// that identity, displacing any earlier connection.
func (l *Lifecycle) Announce(ctx context.Context, conn presence.Conn, identity string) error {
	if identity == "" {
		return fmt.Errorf("announce: %w: empty identity", apperr.ErrUnknownUser)
	}

	l.mu.Lock()
	// Connections are forgotten on Disconnect, so an unknown conn is one
	// that already closed (or was never opened).
	b, ok := l.conns[conn]
	if !ok || b.state == StateClosed {
		l.mu.Unlock()
		return apperr.ErrConnectionClosed
	}
	if b.authIdentity != "" && b.authIdentity != identity {
		l.mu.Unlock()
		return apperr.ErrIdentityMismatch
	}
	previous := b.identity
	b.state = StateIdentified
	b.identity = identity

	// Registry writes happen under l.mu so a concurrent Disconnect of the
	// same conn cannot interleave and leave a stale route behind.
	droppedPrevious := false
	if previous != "" && previous != identity {
		if cur, ok := l.registry.Lookup(previous); ok && cur == conn {
			l.registry.Remove(previous)
			droppedPrevious = true
		}
	}
	l.registry.Register(identity, conn)
	l.mu.Unlock()

	l.logger.Info("user connected",
		zap.String("identity", identity),
		zap.String("conn_id", conn.ID()))

	if droppedPrevious {
		l.mirrorOffline(ctx, previous)
	}
	l.mirrorOnline(ctx, identity)
	return nil
}

// Touch renews the mirrored presence for an identified connection.
func (l *Lifecycle) Touch(ctx context.Context, conn presence.Conn) {
	identity, state := l.Identity(conn)
	if state != StateIdentified {
		return
	}
	l.mirrorOnline(ctx, identity)
}

// Disconnect closes conn and removes its route. Safe to call more than once
// and for connections that never announced.
func (l *Lifecycle) Disconnect(ctx context.Context, conn presence.Conn) {
	l.mu.Lock()
	if b, ok := l.conns[conn]; ok {
		b.state = StateClosed
	}
	delete(l.conns, conn)
	identity, removed := l.registry.RemoveByHandle(conn)
	l.mu.Unlock()

	if !removed {
		l.logger.Debug("connection closed without route", zap.String("conn_id", conn.ID()))
		return
	}

	l.logger.Info("user disconnected",
		zap.String("identity", identity),
		zap.String("conn_id", conn.ID()))
	l.mirrorOffline(ctx, identity)
}

// Identity reports the identity bound to conn and its state. Unknown
// connections report StateClosed.
func (l *Lifecycle) Identity(conn presence.Conn) (string, State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.conns[conn]
	if !ok {
		return "", StateClosed
	}
	return b.identity, b.state
}

// IsOnline answers presence for identity: the local Registry first, then the
// mirror for users connected to other nodes.
func (l *Lifecycle) IsOnline(ctx context.Context, identity string) bool {
	if _, ok := l.registry.Lookup(identity); ok {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, l.mirrorTimeout)
	defer cancel()
	online, err := l.mirror.IsOnline(ctx, identity)
	if err != nil {
		l.logger.Warn("presence mirror lookup failed", zap.String("identity", identity), zap.Error(err))
		return false
	}
	return online
}

func (l *Lifecycle) mirrorOnline(ctx context.Context, identity string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.mirrorTimeout)
	defer cancel()
	if err := l.mirror.Online(ctx, identity); err != nil {
		l.logger.Warn("presence mirror online failed", zap.String("identity", identity), zap.Error(err))
	}
}

// mirrorOffline clears the mirrored presence unless identity has a live
// route again. A route registered while the delete was in flight may have
// had its Online overwritten, so it is restored afterwards.
func (l *Lifecycle) mirrorOffline(ctx context.Context, identity string) {
	if _, ok := l.registry.Lookup(identity); ok {
		return
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.mirrorTimeout)
	defer cancel()
	if err := l.mirror.Offline(mctx, identity); err != nil {
		l.logger.Warn("presence mirror offline failed", zap.String("identity", identity), zap.Error(err))
		return
	}
	if _, ok := l.registry.Lookup(identity); ok {
		l.logger.Debug("identity reconnected during offline, restoring presence", zap.String("identity", identity))
		l.mirrorOnline(ctx, identity)
	}
}
