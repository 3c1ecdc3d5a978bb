// Package chat routes direct messages: persist first, then push to whoever
// is online.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/dmstream/internal/apperr"
	"github.com/lalith-99/dmstream/internal/models"
	"github.com/lalith-99/dmstream/internal/presence"
	"github.com/lalith-99/dmstream/internal/repository"
	"go.uber.org/zap"
)

// Router only reads the Registry; Lifecycle owns the writes.
type Router struct {
	users          repository.UserRepository
	messages       repository.MessageRepository
	registry       *presence.Registry
	storageTimeout time.Duration
	logger         *zap.Logger
}

func NewRouter(
	users repository.UserRepository,
	messages repository.MessageRepository,
	registry *presence.Registry,
	storageTimeout time.Duration,
	logger *zap.Logger,
) *Router {
	return &Router{
		users:          users,
		messages:       messages,
		registry:       registry,
		storageTimeout: storageTimeout,
		logger:         logger,
	}
}

// SendRequest is a validated-on-entry send. Origin is the connection the
// request arrived on, if any.
type SendRequest struct {
	SenderIdentity   string
	ReceiverIdentity string
	Content          string
	Kind             string
	MediaReference   string
	Origin           presence.Conn
}

// DeliveryOutcome reports what happened after the message was stored. The
// delivery flags are informational: delivery is best-effort and a false value
// is not an error.
type DeliveryOutcome struct {
	Message           MessageView
	EchoDelivered     bool
	ReceiverOnline    bool
	ReceiverDelivered bool
}

// Send validates and persists a message, then pushes an isSelf echo to the
// sender and a copy to the receiver if they are online. An offline receiver
// picks the message up through History.
func (r *Router) Send(ctx context.Context, req SendRequest) (*DeliveryOutcome, error) {
	body, err := models.ParseBody(req.Kind, req.Content, req.MediaReference)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidMessage, err)
	}

	sender, err := r.resolve(ctx, req.SenderIdentity)
	if err != nil {
		r.logger.Warn("send rejected", zap.String("sender", req.SenderIdentity), zap.Error(err))
		return nil, fmt.Errorf("sender: %w", err)
	}
	receiver, err := r.resolve(ctx, req.ReceiverIdentity)
	if err != nil {
		r.logger.Warn("send rejected", zap.String("receiver", req.ReceiverIdentity), zap.Error(err))
		return nil, fmt.Errorf("receiver: %w", err)
	}

	// Persist before any push: a crash after this point loses a live copy,
	// never the message.
	sctx, cancel := context.WithTimeout(ctx, r.storageTimeout)
	msg, err := r.messages.Create(sctx, sender, receiver, body)
	cancel()
	if err != nil {
		r.logger.Error("failed to persist message", zap.Error(err))
		return nil, apperr.Storage("create message", err)
	}

	out := &DeliveryOutcome{Message: viewOf(msg, true)}

	if conn := r.echoTarget(sender.Identity, req.Origin); conn != nil {
		out.EchoDelivered = r.deliver(conn, msg, true)
	}

	if conn, ok := r.registry.Lookup(receiver.Identity); ok {
		out.ReceiverOnline = true
		out.ReceiverDelivered = r.deliver(conn, msg, false)
	} else {
		r.logger.Info("receiver offline, message stored",
			zap.String("receiver", receiver.Identity),
			zap.Int64("message_id", msg.ID))
	}

	return out, nil
}

// History returns every message between userA and userB, oldest first, with
// IsSelf relative to userA.
func (r *Router) History(ctx context.Context, userA, userB string) ([]MessageView, error) {
	a, err := r.resolve(ctx, userA)
	if err != nil {
		return nil, fmt.Errorf("userA: %w", err)
	}
	b, err := r.resolve(ctx, userB)
	if err != nil {
		return nil, fmt.Errorf("userB: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, r.storageTimeout)
	defer cancel()
	msgs, err := r.messages.ListBetween(sctx, a.ID, b.ID)
	if err != nil {
		return nil, apperr.Storage("list messages", err)
	}

	views := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, viewOf(&msgs[i], msgs[i].SenderID == a.ID))
	}
	return views, nil
}

// echoTarget prefers the sender's registered route and falls back to the
// connection the request came in on.
func (r *Router) echoTarget(sender string, origin presence.Conn) presence.Conn {
	if conn, ok := r.registry.Lookup(sender); ok {
		return conn
	}
	return origin
}

func (r *Router) deliver(conn presence.Conn, msg *models.Message, isSelf bool) bool {
	err := conn.Deliver(presence.Event{Type: EventMessage, Payload: viewOf(msg, isSelf)})
	if err != nil {
		r.logger.Warn("best-effort delivery failed",
			zap.String("conn_id", conn.ID()),
			zap.Int64("message_id", msg.ID),
			zap.Bool("is_self", isSelf),
			zap.Error(err))
		return false
	}
	return true
}

func (r *Router) resolve(ctx context.Context, identity string) (*models.User, error) {
	if identity == "" {
		return nil, apperr.ErrUnknownUser
	}
	sctx, cancel := context.WithTimeout(ctx, r.storageTimeout)
	defer cancel()
	u, err := r.users.GetByIdentity(sctx, identity)
	if err != nil {
		return nil, apperr.Storage("find user", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownUser, identity)
	}
	return u, nil
}

