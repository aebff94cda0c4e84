package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/api/transport"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	ledgerUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ledger"
)

type LedgerHandler struct {
	baseHandler
	uc     *ledgerUC.UseCase
	buffer usecase.UsageBuffer
	deals  DealReader
}

// NewLedgerHandler builds the usage and credit endpoints. A nil buffer makes
// every usage write synchronous.
func NewLedgerHandler(uc *ledgerUC.UseCase, buffer usecase.UsageBuffer, deals DealReader, adapter *httpcontext.Adapter, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		buffer:      buffer,
		deals:       deals,
	}
}

// @Summary Record usage of an ingredient
// @Description Buffered by default (202). Pass sync=true to record inline.
// @Tags usage
// @Router /api/v1/deals/{id}/usage [post]
func (h *LedgerHandler) RecordUsage(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	var req transport.UsageRequest
	if !h.decode(ctx, &req) {
		return
	}
	dealID := pathParam(ctx, "id")
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if !h.member(ctx, stdCtx, h.deals, dealID, participantID) {
		return
	}
	event := req.Event(dealID)

	if h.buffer != nil && query(ctx, "sync") != "true" {
		id, err := h.buffer.BufferUsage(stdCtx, event)
		if err != nil {
			h.respondError(ctx, err)
			return
		}
		h.log(stdCtx).Debug("usage buffered", zap.String("usage_id", id), zap.String("deal_id", dealID))
		h.respondSuccess(ctx, http.StatusAccepted, transport.UsageAccepted{ID: id, Buffered: true})
		return
	}

	recorded, created, err := h.uc.Record(stdCtx, event)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	h.respondSuccess(ctx, status, transport.UsageAccepted{ID: recorded.ID, Recorded: created})
}

// @Summary List usage events of a deal
// @Tags usage
// @Router /api/v1/deals/{id}/usage [get]
func (h *LedgerHandler) ListUsage(ctx *fasthttp.RequestCtx) {
	filter := repository.UsageListFilter{
		DealID:       pathParam(ctx, "id"),
		IngredientID: query(ctx, "ingredient_id"),
		Limit:        parseInt(query(ctx, "limit"), 100),
		Offset:       parseInt(query(ctx, "offset"), 0),
	}
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, filter.DealID)
	if !ok {
		return
	}
	defer cancel()

	events, err := h.uc.ListEvents(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, events, len(events), filter.Limit, filter.Offset)
}

// @Summary Aggregated usage per ingredient and type
// @Tags usage
// @Router /api/v1/deals/{id}/usage/summary [get]
func (h *LedgerHandler) Summaries(ctx *fasthttp.RequestCtx) {
	filter := domain.UsageFilter{
		DealID:       pathParam(ctx, "id"),
		IngredientID: query(ctx, "ingredient_id"),
		UsageType:    query(ctx, "usage_type"),
	}
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, filter.DealID)
	if !ok {
		return
	}
	defer cancel()

	summaries, err := h.uc.Summaries(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, summaries, len(summaries), 0, 0)
}

// @Summary Record a contribution or value credit
// @Tags credits
// @Router /api/v1/deals/{id}/credits [post]
func (h *LedgerHandler) AddCredit(ctx *fasthttp.RequestCtx) {
	var in ledgerUC.CreditInput
	if !h.decode(ctx, &in) {
		return
	}
	in.DealID = pathParam(ctx, "id")
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, in.DealID)
	if !ok {
		return
	}
	defer cancel()

	credit, err := h.uc.AddCredit(stdCtx, in)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, credit)
}

// @Summary List credits of a deal
// @Tags credits
// @Router /api/v1/deals/{id}/credits [get]
func (h *LedgerHandler) ListCredits(ctx *fasthttp.RequestCtx) {
	filter := repository.CreditFilter{
		DealID:        pathParam(ctx, "id"),
		ParticipantID: query(ctx, "participant_id"),
		Tier:          query(ctx, "tier"),
	}
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, filter.DealID)
	if !ok {
		return
	}
	defer cancel()

	credits, err := h.uc.ListCredits(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, credits, len(credits), 0, 0)
}

// @Summary Credit totals per participant and tier
// @Tags credits
// @Router /api/v1/deals/{id}/credits/summary [get]
func (h *LedgerHandler) CreditSummary(ctx *fasthttp.RequestCtx) {
	dealID := pathParam(ctx, "id")
	stdCtx, cancel, ok := h.dealScope(ctx, h.deals, dealID)
	if !ok {
		return
	}
	defer cancel()

	summary, err := h.uc.CreditSummary(stdCtx, dealID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, summary, len(summary), 0, 0)
}

// @Summary Verify a value credit
// @Tags credits
// @Router /api/v1/credits/{id}/verify [post]
func (h *LedgerHandler) VerifyCredit(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	credit, err := h.uc.GetCredit(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if !h.member(ctx, stdCtx, h.deals, credit.DealID, participantID) {
		return
	}
	credit, err = h.uc.VerifyCredit(stdCtx, credit.ID, participantID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, credit)
}
