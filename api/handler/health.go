package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/api/transport"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/monitor"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
)

// StatusSource reports dependency health.
type StatusSource interface {
	GetStatus() monitor.Status
}

type HealthHandler struct {
	baseHandler
	monitor StatusSource
}

func NewHealthHandler(mon StatusSource, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]interface{}{
		"timestamp":  time.Now().UTC(),
		"last_check": status.LastCheck,
		"services": map[string]interface{}{
			"postgresql": status.PostgreSQL,
			"redis":      status.Redis,
			"inbox": map[string]interface{}{
				"enabled":      status.Inbox.Enabled,
				"healthy":      status.Inbox.Healthy,
				"pending":      status.InboxPending,
				"dead_letters": status.InboxDead,
			},
		},
	}

	if status.Online() && status.Inbox.Up() {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError("DEGRADED", transport.ErrorBody{Message: "dependencies unhealthy"}, payload))
}
