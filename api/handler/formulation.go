package handler

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/api/transport"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	formulationUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/formulation"
)

type FormulationHandler struct {
	baseHandler
	uc    *formulationUC.UseCase
	deals DealReader
}

func NewFormulationHandler(uc *formulationUC.UseCase, deals DealReader, adapter *httpcontext.Adapter, logger *zap.Logger) *FormulationHandler {
	return &FormulationHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		deals:       deals,
	}
}

// @Summary Create draft formulation
// @Tags formulations
// @Router /api/v1/deals/{id}/formulations [post]
func (h *FormulationHandler) Create(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	var req transport.FormulationRequest
	if !h.decode(ctx, &req) {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	dealID := pathParam(ctx, "id")
	if !h.member(ctx, stdCtx, h.deals, dealID, participantID) {
		return
	}
	f, err := h.uc.Create(stdCtx, dealID, req.Name, req.Description)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, f)
}

// @Summary List formulations of a deal
// @Tags formulations
// @Router /api/v1/deals/{id}/formulations [get]
func (h *FormulationHandler) List(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	filter := repository.FormulationFilter{
		DealID: pathParam(ctx, "id"),
		Status: query(ctx, "status"),
		Limit:  parseInt(query(ctx, "limit"), 50),
		Offset: parseInt(query(ctx, "offset"), 0),
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if !h.member(ctx, stdCtx, h.deals, filter.DealID, participantID) {
		return
	}
	items, err := h.uc.List(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, items, len(items), filter.Limit, filter.Offset)
}

// @Summary Active formulation of a deal
// @Tags formulations
// @Router /api/v1/deals/{id}/formulations/active [get]
func (h *FormulationHandler) GetActive(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	dealID := pathParam(ctx, "id")
	if !h.member(ctx, stdCtx, h.deals, dealID, participantID) {
		return
	}
	f, err := h.uc.GetActive(stdCtx, dealID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, f)
}

// @Summary Get formulation
// @Tags formulations
// @Router /api/v1/formulations/{id} [get]
func (h *FormulationHandler) Get(ctx *fasthttp.RequestCtx) {
	_, cancel, f, _, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()
	h.respondSuccess(ctx, http.StatusOK, f)
}

// @Summary Composition report
// @Tags formulations
// @Router /api/v1/formulations/{id}/composition [get]
func (h *FormulationHandler) Composition(ctx *fasthttp.RequestCtx) {
	_, cancel, f, _, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()
	h.respondSuccess(ctx, http.StatusOK, domain.Composition(f))
}

// @Summary Add ingredient to a draft
// @Tags formulations
// @Router /api/v1/formulations/{id}/ingredients [post]
func (h *FormulationHandler) AddIngredient(ctx *fasthttp.RequestCtx) {
	var in formulationUC.EdgeInput
	if !h.decode(ctx, &in) {
		return
	}
	stdCtx, cancel, f, _, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.AddIngredient(stdCtx, f.ID, in)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Edit a draft composition edge
// @Tags formulations
// @Router /api/v1/formulations/{id}/ingredients/{ingredient_id} [patch]
func (h *FormulationHandler) UpdateIngredient(ctx *fasthttp.RequestCtx) {
	var changes domain.IngredientChanges
	if !h.decode(ctx, &changes) {
		return
	}
	stdCtx, cancel, f, _, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.UpdateIngredient(stdCtx, f.ID, pathParam(ctx, "ingredient_id"), changes)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Remove ingredient from a draft
// @Tags formulations
// @Router /api/v1/formulations/{id}/ingredients/{ingredient_id} [delete]
func (h *FormulationHandler) RemoveIngredient(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, f, _, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.RemoveIngredient(stdCtx, f.ID, pathParam(ctx, "ingredient_id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Submit draft for review
// @Tags formulations
// @Router /api/v1/formulations/{id}/submit [post]
func (h *FormulationHandler) Submit(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, f, _, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	submitted, report, err := h.uc.SubmitForReview(stdCtx, f.ID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.SubmitResponse{Formulation: submitted, Composition: report})
}

// @Summary Activate and lock
// @Tags formulations
// @Router /api/v1/formulations/{id}/activate [post]
func (h *FormulationHandler) Activate(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, f, participantID, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	activated, err := h.uc.Activate(stdCtx, f.ID, participantID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, activated)
}

// @Summary Archive
// @Tags formulations
// @Router /api/v1/formulations/{id}/archive [post]
func (h *FormulationHandler) Archive(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, f, participantID, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	archived, err := h.uc.Archive(stdCtx, f.ID, participantID, isAdmin(ctx))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, archived)
}

// load resolves the path formulation and checks the caller's membership.
// On success the caller owns cancel.
func (h *FormulationHandler) load(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc, *domain.Formulation, string, bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, nil, "", false
	}
	stdCtx, cancel := h.requestContext(ctx)
	f, err := h.uc.Get(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return nil, nil, nil, "", false
	}
	if !h.member(ctx, stdCtx, h.deals, f.DealID, participantID) {
		cancel()
		return nil, nil, nil, "", false
	}
	return stdCtx, cancel, f, participantID, true
}
