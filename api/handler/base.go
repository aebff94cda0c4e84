package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/api/transport"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
	appLogger "github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/logger"
)

const roleAdmin = "admin"

// DealReader is what handlers need to check deal membership.
type DealReader interface {
	Get(ctx context.Context, id string) (*domain.Deal, error)
}

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	stdCtx, cancel := context.WithCancel(context.Background())
	if id, ok := ctx.UserValue(httpcontext.UserValueParticipant).(string); ok {
		stdCtx = httpcontext.WithParticipant(stdCtx, id)
	}
	return stdCtx, cancel
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondList(ctx *fasthttp.RequestCtx, data interface{}, count, limit, offset int) {
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(data, transport.Page{Limit: limit, Offset: offset, Count: count}))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	status, code := mapError(err)
	body := transport.ErrorBody{Message: err.Error()}
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		body.Field = dErr.Field
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", string(ctx.Path())),
			zap.String("code", code),
			zap.String("request_id", string(ctx.Response.Header.Peek("X-Request-ID"))),
			zap.Error(err))
	}
	h.respondJSON(ctx, status, transport.NewError(code, body, nil))
}

func (h baseHandler) badRequest(ctx *fasthttp.RequestCtx, message string) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), transport.ErrorBody{Message: message}, nil))
}

// decode unmarshals the request body into dst and answers 400 on failure.
func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		h.badRequest(ctx, "invalid payload: "+err.Error())
		return false
	}
	return true
}

// participant returns the authenticated participant id, answering 401 when
// it is missing.
func (h baseHandler) participant(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue(httpcontext.UserValueParticipant).(string)
	if id == "" {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), transport.ErrorBody{Message: "missing participant"}, nil))
	}
	return id
}

func isAdmin(ctx *fasthttp.RequestCtx) bool {
	role, _ := ctx.UserValue(httpcontext.UserValueRole).(string)
	return role == roleAdmin
}

// member verifies that the participant belongs to the deal, answering 404
// or 403 otherwise.
func (h baseHandler) member(ctx *fasthttp.RequestCtx, stdCtx context.Context, deals DealReader, dealID, participantID string) bool {
	d, err := deals.Get(stdCtx, dealID)
	if err != nil {
		h.respondError(ctx, err)
		return false
	}
	if !d.HasParticipant(participantID) && !isAdmin(ctx) {
		h.respondError(ctx, domain.NewError(domain.ErrCodeForbidden, "participant "+participantID+" is not part of deal "+dealID))
		return false
	}
	return true
}

// dealScope authenticates the caller and checks membership of dealID. The
// returned cancel must be called when ok is true.
func (h baseHandler) dealScope(ctx *fasthttp.RequestCtx, deals DealReader, dealID string) (context.Context, context.CancelFunc, bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, false
	}
	stdCtx, cancel := h.requestContext(ctx)
	if !h.member(ctx, stdCtx, deals, dealID, participantID) {
		cancel()
		return nil, nil, false
	}
	return stdCtx, cancel, true
}

func (h baseHandler) log(stdCtx context.Context) *zap.Logger {
	return appLogger.WithRequestID(stdCtx, h.logger)
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func query(ctx *fasthttp.RequestCtx, name string) string {
	return string(ctx.QueryArgs().Peek(name))
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func mapError(err error) (int, string) {
	var dErr *domain.Error
	if !errors.As(err, &dErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, string(domain.ErrCodeInternal)
		}
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
	switch dErr.Code {
	case domain.ErrCodeInvalid:
		return http.StatusBadRequest, string(dErr.Code)
	case domain.ErrCodeState:
		return http.StatusConflict, string(dErr.Code)
	case domain.ErrCodeLocked:
		return http.StatusLocked, string(dErr.Code)
	case domain.ErrCodeConsensus:
		return http.StatusConflict, string(dErr.Code)
	case domain.ErrCodeCalculation:
		return http.StatusUnprocessableEntity, string(dErr.Code)
	case domain.ErrCodeExecution:
		return http.StatusInternalServerError, string(dErr.Code)
	case domain.ErrCodeNotFound:
		return http.StatusNotFound, string(dErr.Code)
	case domain.ErrCodeConflict:
		return http.StatusConflict, string(dErr.Code)
	case domain.ErrCodeForbidden:
		return http.StatusForbidden, string(dErr.Code)
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized, string(dErr.Code)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}
