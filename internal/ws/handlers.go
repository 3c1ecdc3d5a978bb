package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lalith-99/dmstream/internal/apperr"
	"github.com/lalith-99/dmstream/internal/chat"
	"github.com/lalith-99/dmstream/internal/friends"
	"github.com/lalith-99/dmstream/internal/models"
	"github.com/lalith-99/dmstream/internal/repository"
	"github.com/lalith-99/dmstream/internal/session"
	"go.uber.org/zap"
)

// Services bundles what the event handlers call into.
type Services struct {
	Lifecycle      *session.Lifecycle
	Router         *chat.Router
	Friends        *friends.Manager
	Users          repository.UserRepository
	StorageTimeout time.Duration
}

type events struct {
	Services
	logger *zap.Logger
}

// RegisterHandlers binds every client event type to d.
func RegisterHandlers(d *Dispatcher, svc Services, logger *zap.Logger) {
	h := &events{Services: svc, logger: logger}
	d.On(TypeAnnounce, h.announce)
	d.On(TypeSendMessage, h.sendMessage)
	d.On(TypeSearchUser, h.searchUser)
	d.On(TypeRequestFriend, h.requestFriend)
	d.On(TypeListFriends, h.listFriends)
	d.On(TypeGetHistory, h.getHistory)
}

type ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing payload", errBadPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// actingAs rejects requests that claim to act for someone other than the
// identity the connection is bound to. Anonymous unauthenticated
// connections are not checked.
func (h *events) actingAs(c *Conn, claimed string) error {
	bound, state := h.Lifecycle.Identity(c)
	if state != session.StateIdentified {
		bound = c.authIdentity
	}
	if bound != "" && claimed != bound {
		return apperr.ErrIdentityMismatch
	}
	return nil
}

// Identities are stored uppercase.
func normalizeIdentity(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type announceReq struct {
	Identity string `json:"identity"`
}

func (h *events) announce(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
	var req announceReq
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	identity := normalizeIdentity(req.Identity)
	if err := h.Lifecycle.Announce(ctx, c, identity); err != nil {
		return nil, err
	}
	return ack{OK: true, Message: "connected as " + identity}, nil
}

type sendMessageReq struct {
	SenderIdentity   string `json:"senderIdentity"`
	ReceiverIdentity string `json:"receiverIdentity"`
	Content          string `json:"content"`
	Kind             string `json:"kind"`
	MediaReference   string `json:"mediaReference"`
}

type sendMessageResult struct {
	OK      bool             `json:"ok"`
	Message chat.MessageView `json:"message"`
}

func (h *events) sendMessage(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
	var req sendMessageReq
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if err := h.actingAs(c, req.SenderIdentity); err != nil {
		return nil, err
	}

	out, err := h.Router.Send(ctx, chat.SendRequest{
		SenderIdentity:   req.SenderIdentity,
		ReceiverIdentity: req.ReceiverIdentity,
		Content:          req.Content,
		Kind:             req.Kind,
		MediaReference:   req.MediaReference,
		Origin:           c,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Debug("message routed",
		zap.String("trace_id", TraceIDFromCtx(ctx)),
		zap.Bool("receiver_online", out.ReceiverOnline),
		zap.Bool("receiver_delivered", out.ReceiverDelivered))
	return sendMessageResult{OK: true, Message: out.Message}, nil
}

type searchUserReq struct {
	Query string `json:"query"`
}

type searchUserResult struct {
	Found  bool                `json:"found"`
	User   *models.UserSummary `json:"user,omitempty"`
	Online bool                `json:"online"`
}

func (h *events) searchUser(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
	var req searchUserReq
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	query := normalizeIdentity(req.Query)
	if query == "" {
		return searchUserResult{}, nil
	}

	sctx, cancel := context.WithTimeout(ctx, h.StorageTimeout)
	u, err := h.Users.GetByIdentity(sctx, query)
	cancel()
	if err != nil {
		return nil, apperr.Storage("search user", err)
	}
	if u == nil {
		return searchUserResult{}, nil
	}

	summary := u.Summary()
	return searchUserResult{
		Found:  true,
		User:   &summary,
		Online: h.Lifecycle.IsOnline(ctx, u.Identity),
	}, nil
}

type requestFriendReq struct {
	RequesterIdentity string `json:"requesterIdentity"`
	RecipientIdentity string `json:"recipientIdentity"`
}

func (h *events) requestFriend(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
	var req requestFriendReq
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if err := h.actingAs(c, req.RequesterIdentity); err != nil {
		return nil, err
	}
	if err := h.Friends.RequestFriend(ctx, req.RequesterIdentity, req.RecipientIdentity); err != nil {
		return nil, err
	}
	return ack{OK: true, Message: "Friend request sent."}, nil
}

type listFriendsReq struct {
	UserIdentity string `json:"userIdentity"`
}

type listFriendsResult struct {
	OK      bool                 `json:"ok"`
	Friends []models.UserSummary `json:"friends"`
}

func (h *events) listFriends(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
	var req listFriendsReq
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if err := h.actingAs(c, req.UserIdentity); err != nil {
		return nil, err
	}
	list, err := h.Friends.ListFriends(ctx, req.UserIdentity)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.UserSummary{}
	}
	return listFriendsResult{OK: true, Friends: list}, nil
}

type getHistoryReq struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

type getHistoryResult struct {
	OK       bool               `json:"ok"`
	Messages []chat.MessageView `json:"messages"`
}

func (h *events) getHistory(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
	var req getHistoryReq
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if err := h.actingAs(c, req.UserA); err != nil {
		return nil, err
	}
	msgs, err := h.Router.History(ctx, req.UserA, req.UserB)
	if err != nil {
		return nil, err
	}
	return getHistoryResult{OK: true, Messages: msgs}, nil
}
