package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/api/transport"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	settlementUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/settlement"
)

type SettlementHandler struct {
	baseHandler
	uc    *settlementUC.UseCase
	deals DealReader
}

func NewSettlementHandler(uc *settlementUC.UseCase, deals DealReader, adapter *httpcontext.Adapter, logger *zap.Logger) *SettlementHandler {
	return &SettlementHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		deals:       deals,
	}
}

// @Summary Create settlement contract
// @Tags settlements
// @Router /api/v1/deals/{id}/contracts [post]
func (h *SettlementHandler) CreateContract(ctx *fasthttp.RequestCtx) {
	var in settlementUC.ContractInput
	if !h.decode(ctx, &in) {
		return
	}
	in.DealID = pathParam(ctx, "id")
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, in.DealID)
	if !ok {
		return
	}
	defer cancel()

	c, err := h.uc.CreateContract(stdCtx, in)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, c)
}

// @Summary List settlement contracts of a deal
// @Tags settlements
// @Router /api/v1/deals/{id}/contracts [get]
func (h *SettlementHandler) ListContracts(ctx *fasthttp.RequestCtx) {
	filter := repository.ContractFilter{
		DealID:      pathParam(ctx, "id"),
		TriggerType: query(ctx, "trigger_type"),
		ActiveOnly:  query(ctx, "active") == "true",
	}
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, filter.DealID)
	if !ok {
		return
	}
	defer cancel()

	contracts, err := h.uc.ListContracts(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, contracts, len(contracts), 0, 0)
}

// @Summary Get settlement contract
// @Tags settlements
// @Router /api/v1/contracts/{id} [get]
func (h *SettlementHandler) GetContract(ctx *fasthttp.RequestCtx) {
	_, cancel, c, _, ok := h.contract(ctx)
	if !ok {
		return
	}
	defer cancel()
	h.respondSuccess(ctx, http.StatusOK, c)
}

// @Summary Deactivate settlement contract
// @Tags settlements
// @Router /api/v1/contracts/{id} [delete]
func (h *SettlementHandler) DeactivateContract(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, c, _, ok := h.contract(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.DeactivateContract(stdCtx, c.ID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Execute a contract directly
// @Description Used for manual_approval contracts; the caller is the approver.
// @Tags settlements
// @Router /api/v1/contracts/{id}/execute [post]
func (h *SettlementHandler) Execute(ctx *fasthttp.RequestCtx) {
	var req transport.TriggerRequest
	if len(ctx.PostBody()) > 0 && !h.decode(ctx, &req) {
		return
	}
	stdCtx, cancel, c, participantID, ok := h.contract(ctx)
	if !ok {
		return
	}
	defer cancel()

	ev := req.Event(c.DealID)
	ev.Type = c.TriggerType
	ev.ApprovedBy = participantID

	exec, err := h.uc.Execute(stdCtx, c.ID, ev)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, exec)
}

// @Summary Deliver a trigger event to a deal's contracts
// @Tags settlements
// @Router /api/v1/deals/{id}/triggers [post]
func (h *SettlementHandler) Trigger(ctx *fasthttp.RequestCtx) {
	var req transport.TriggerRequest
	if !h.decode(ctx, &req) {
		return
	}
	dealID := pathParam(ctx, "id")
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, dealID)
	if !ok {
		return
	}
	defer cancel()

	ev := req.Event(dealID)
	if ev.Type == domain.TriggerManualApproval {
		ev.ApprovedBy, _ = ctx.UserValue(httpcontext.UserValueParticipant).(string)
	}
	executions, err := h.uc.HandleTrigger(stdCtx, ev)
	if err != nil && len(executions) == 0 {
		h.respondError(ctx, err)
		return
	}
	result := transport.TriggerResult{Executions: executions}
	if err != nil {
		result.Errors = splitJoined(err)
		h.log(stdCtx).Warn("trigger partially failed",
			zap.String("deal_id", dealID),
			zap.Int("executions", len(executions)),
			zap.Error(err))
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}

// @Summary List executions of a deal
// @Tags settlements
// @Router /api/v1/deals/{id}/executions [get]
func (h *SettlementHandler) ListExecutions(ctx *fasthttp.RequestCtx) {
	filter := repository.ExecutionFilter{
		DealID:     pathParam(ctx, "id"),
		ContractID: query(ctx, "contract_id"),
		Status:     query(ctx, "status"),
		Limit:      parseInt(query(ctx, "limit"), 50),
		Offset:     parseInt(query(ctx, "offset"), 0),
	}
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, filter.DealID)
	if !ok {
		return
	}
	defer cancel()

	executions, err := h.uc.ListExecutions(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, executions, len(executions), filter.Limit, filter.Offset)
}

// @Summary Get execution
// @Tags settlements
// @Router /api/v1/executions/{id} [get]
func (h *SettlementHandler) GetExecution(ctx *fasthttp.RequestCtx) {
	_, cancel, exec, ok := h.execution(ctx)
	if !ok {
		return
	}
	defer cancel()
	h.respondSuccess(ctx, http.StatusOK, exec)
}

// @Summary List payouts of an execution
// @Tags settlements
// @Router /api/v1/executions/{id}/payouts [get]
func (h *SettlementHandler) ListPayouts(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, exec, ok := h.execution(ctx)
	if !ok {
		return
	}
	defer cancel()

	payouts, err := h.uc.ListPayouts(stdCtx, exec.ID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, payouts, len(payouts), 0, 0)
}

// @Summary Mark payout as paid
// @Tags settlements
// @Router /api/v1/payouts/{id}/paid [post]
func (h *SettlementHandler) MarkPaid(ctx *fasthttp.RequestCtx) {
	var req transport.MarkPaidRequest
	if !h.decode(ctx, &req) {
		return
	}
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	p, err := h.uc.GetPayout(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	exec, err := h.uc.GetExecution(stdCtx, p.ExecutionID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if !h.member(ctx, stdCtx, h.deals, exec.DealID, participantID) {
		return
	}
	p, err = h.uc.MarkPayoutPaid(stdCtx, p.ID, req.PaymentReference)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, p)
}

func (h *SettlementHandler) contract(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc, *domain.SettlementContract, string, bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, nil, "", false
	}
	stdCtx, cancel := h.requestContext(ctx)
	c, err := h.uc.GetContract(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return nil, nil, nil, "", false
	}
	if !h.member(ctx, stdCtx, h.deals, c.DealID, participantID) {
		cancel()
		return nil, nil, nil, "", false
	}
	return stdCtx, cancel, c, participantID, true
}

func (h *SettlementHandler) execution(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc, *domain.SettlementExecution, bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, nil, false
	}
	stdCtx, cancel := h.requestContext(ctx)
	exec, err := h.uc.GetExecution(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return nil, nil, nil, false
	}
	if !h.member(ctx, stdCtx, h.deals, exec.DealID, participantID) {
		cancel()
		return nil, nil, nil, false
	}
	return stdCtx, cancel, exec, true
}

func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
