package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/dmstream/internal/apperr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HandlerFunc processes a decoded request payload. The returned value is sent
// back as the payload of the "<type>.result" reply.
type HandlerFunc func(ctx context.Context, c *Conn, payload json.RawMessage) (any, error)

var errBadPayload = errors.New("malformed payload")

// failure is the reply payload for a request that could not be served.
// Message carries the same text as Error for clients that only read the
// ack's message field.
type failure struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func failed(text string) failure {
	return failure{Message: text, Error: text}
}

// Dispatcher routes inbound frames to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers fn for msgType. Not safe to call once connections are served.
func (d *Dispatcher) On(msgType string, fn HandlerFunc) {
	d.handlers[msgType] = fn
}

// Dispatch decodes raw, runs the matching handler and queues the reply on c.
// A nil limiter disables rate limiting.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, limiter *rate.Limiter, raw []byte) {
	var req inbound
	if err := json.Unmarshal(raw, &req); err != nil || req.Type == "" {
		d.logger.Warn("malformed frame", zap.String("conn_id", c.ID()), zap.Error(err))
		_ = c.reply("", TypeError, errorReply{Error: "malformed frame"})
		return
	}

	if limiter != nil && !limiter.Allow() {
		d.logger.Warn("rate limited", zap.String("conn_id", c.ID()), zap.String("type", req.Type))
		_ = c.reply(req.ID, TypeError, errorReply{Error: "rate limited"})
		return
	}

	fn, ok := d.handlers[req.Type]
	if !ok {
		d.logger.Debug("unhandled message type", zap.String("type", req.Type))
		_ = c.reply(req.ID, TypeError, errorReply{Error: fmt.Sprintf("unknown type %q", req.Type)})
		return
	}

	traceID := uuid.NewString()
	ctx = context.WithValue(ctx, ctxKeyTraceID{}, traceID)

	result, err := d.invoke(ctx, fn, c, req.Payload)
	if err != nil {
		result = d.failure(req.Type, traceID, err)
	}
	if werr := c.reply(req.ID, req.Type+resultSuffix, result); werr != nil {
		d.logger.Debug("reply dropped", zap.String("type", req.Type), zap.Error(werr))
	}
}

// invoke runs fn and turns a panic into an error so one bad request cannot
// take the read loop down.
func (d *Dispatcher) invoke(ctx context.Context, fn HandlerFunc, c *Conn, payload json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", zap.String("conn_id", c.ID()), zap.Any("panic", r))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, c, payload)
}

func (d *Dispatcher) failure(msgType, traceID string, err error) failure {
	if apperr.IsValidation(err) || errors.Is(err, errBadPayload) {
		d.logger.Info("request rejected",
			zap.String("type", msgType),
			zap.String("trace_id", traceID),
			zap.Error(err))
		return failed(err.Error())
	}
	d.logger.Error("handler error",
		zap.String("type", msgType),
		zap.String("trace_id", traceID),
		zap.Error(err))
	if errors.Is(err, apperr.ErrStorageUnavailable) {
		return failed(apperr.ErrStorageUnavailable.Error())
	}
	return failed("internal error")
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
