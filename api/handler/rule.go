package handler

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	attributionUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/attribution"
	formulationUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/formulation"
)

type RuleHandler struct {
	baseHandler
	uc           *attributionUC.UseCase
	formulations *formulationUC.UseCase
	deals        DealReader
}

func NewRuleHandler(uc *attributionUC.UseCase, formulations *formulationUC.UseCase, deals DealReader, adapter *httpcontext.Adapter, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		baseHandler:  newBaseHandler(adapter, logger),
		uc:           uc,
		formulations: formulations,
		deals:        deals,
	}
}

// @Summary Create attribution rule on a draft
// @Tags rules
// @Router /api/v1/formulations/{id}/rules [post]
func (h *RuleHandler) Create(ctx *fasthttp.RequestCtx) {
	var in attributionUC.RuleInput
	if !h.decode(ctx, &in) {
		return
	}
	stdCtx, cancel, f, ok := h.formulation(ctx)
	if !ok {
		return
	}
	defer cancel()

	in.FormulationID = f.ID
	rule, err := h.uc.CreateRule(stdCtx, in)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, rule)
}

// @Summary List rules of a formulation
// @Tags rules
// @Router /api/v1/formulations/{id}/rules [get]
func (h *RuleHandler) List(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, f, ok := h.formulation(ctx)
	if !ok {
		return
	}
	defer cancel()

	filter := repository.RuleFilter{
		FormulationID: f.ID,
		ParticipantID: query(ctx, "participant_id"),
		ActiveOnly:    query(ctx, "active") == "true",
	}
	rules, err := h.uc.List(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, rules, len(rules), 0, 0)
}

// @Summary Sum of active payout percentages
// @Tags rules
// @Router /api/v1/formulations/{id}/allocation [get]
func (h *RuleHandler) Allocation(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, f, ok := h.formulation(ctx)
	if !ok {
		return
	}
	defer cancel()

	allocation, err := h.uc.TotalActivePercentage(stdCtx, f.ID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, allocation)
}

// @Summary Get rule
// @Tags rules
// @Router /api/v1/rules/{id} [get]
func (h *RuleHandler) Get(ctx *fasthttp.RequestCtx) {
	_, cancel, rule, ok := h.rule(ctx)
	if !ok {
		return
	}
	defer cancel()
	h.respondSuccess(ctx, http.StatusOK, rule)
}

// @Summary Edit rule of a draft
// @Tags rules
// @Router /api/v1/rules/{id} [patch]
func (h *RuleHandler) Update(ctx *fasthttp.RequestCtx) {
	var changes domain.RuleChanges
	if !h.decode(ctx, &changes) {
		return
	}
	stdCtx, cancel, rule, ok := h.rule(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.UpdateRule(stdCtx, rule.ID, changes)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Deactivate rule of a draft
// @Tags rules
// @Router /api/v1/rules/{id} [delete]
func (h *RuleHandler) Deactivate(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, rule, ok := h.rule(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.DeactivateRule(stdCtx, rule.ID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

func (h *RuleHandler) formulation(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc, *domain.Formulation, bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, nil, false
	}
	stdCtx, cancel := h.requestContext(ctx)
	f, err := h.formulations.Get(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return nil, nil, nil, false
	}
	if !h.member(ctx, stdCtx, h.deals, f.DealID, participantID) {
		cancel()
		return nil, nil, nil, false
	}
	return stdCtx, cancel, f, true
}

func (h *RuleHandler) rule(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc, *domain.AttributionRule, bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, nil, false
	}
	stdCtx, cancel := h.requestContext(ctx)
	rule, err := h.uc.Get(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return nil, nil, nil, false
	}
	if !h.member(ctx, stdCtx, h.deals, rule.DealID, participantID) {
		cancel()
		return nil, nil, nil, false
	}
	return stdCtx, cancel, rule, true
}
