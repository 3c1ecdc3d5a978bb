// Package ws is the websocket transport: one read loop and one write pump per
// connection, JSON envelopes dispatched to the messaging services.
package ws

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/dmstream/internal/auth"
	"github.com/lalith-99/dmstream/internal/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configure the upgrade handler.
type Options struct {
	// AllowedOrigins is the CheckOrigin allow-list. Empty allows all
	// origins, which is only meant for development.
	AllowedOrigins []string
	JWTSecret      string
	EventRPS       float64
	EventBurst     int
}

// Handler is the gin handler for GET /ws.
type Handler struct {
	lifecycle  *session.Lifecycle
	dispatcher *Dispatcher
	opts       Options
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewHandler(lifecycle *session.Lifecycle, dispatcher *Dispatcher, opts Options, logger *zap.Logger) *Handler {
	allowed := opts.AllowedOrigins
	return &Handler{
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return slices.Contains(allowed, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeWS handles GET /ws[?token=<jwt>]. Without a token the connection
// starts anonymous and may announce any identity; with one, it may only
// act as the token's identity.
func (h *Handler) ServeWS(c *gin.Context) {
	var authIdentity string
	if tok := c.Query("token"); tok != "" {
		claims, err := auth.ParseToken(tok, h.opts.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		authIdentity = claims.Identity
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	wsConn.SetReadLimit(maxFrameBytes)

	conn := newConn(wsConn, authIdentity, h.logger)
	h.lifecycle.Open(conn, authIdentity)
	go conn.writePump()

	h.readPump(c, conn)
}

// readPump blocks until the connection goes away. Frames are handled one at
// a time, so a sender's messages are persisted in the order they arrived.
func (h *Handler) readPump(c *gin.Context, conn *Conn) {
	ctx := c.Request.Context()
	defer func() {
		h.lifecycle.Disconnect(ctx, conn)
		conn.Close()
	}()

	var limiter *rate.Limiter
	if h.opts.EventRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opts.EventRPS), h.opts.EventBurst)
	}

	conn.extendReadDeadline()
	conn.ws.SetPongHandler(func(string) error {
		conn.extendReadDeadline()
		h.lifecycle.Touch(ctx, conn)
		return nil
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}
		if conn.closed() {
			return
		}
		conn.extendReadDeadline()
		h.dispatcher.Dispatch(ctx, conn, limiter, raw)
	}
}
