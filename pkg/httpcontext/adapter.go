package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr  Key = "remote_addr"
	KeyUserAgent   Key = "user_agent"
	KeyParticipant Key = "participant_id"
)

// fasthttp user values set by the auth middleware.
const (
	UserValueParticipant = "participant_id"
	UserValueRole        = "role"
)

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout: timeout,
	}
}

// Attach creates a context with timeout derived from the adapter and enriches
// it with request metadata and the authenticated participant.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := getRequestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set("X-Request-ID", reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}
	if id, ok := ctx.UserValue(UserValueParticipant).(string); ok && id != "" {
		stdCtx = WithParticipant(stdCtx, id)
	}

	return stdCtx, cancel
}

// WithParticipant stores the acting participant id.
func WithParticipant(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, KeyParticipant, participantID)
}

// Participant returns the acting participant id, empty when unauthenticated.
func Participant(ctx context.Context) string {
	id, _ := ctx.Value(KeyParticipant).(string)
	return id
}

func getRequestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if header := string(ctx.Request.Header.Peek("X-Request-ID")); strings.TrimSpace(header) != "" {
		return header
	}
	return uuid.NewString()
}
