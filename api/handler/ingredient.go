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
	ingredientUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ingredient"
)

type IngredientHandler struct {
	baseHandler
	uc    *ingredientUC.UseCase
	deals DealReader
}

func NewIngredientHandler(uc *ingredientUC.UseCase, deals DealReader, adapter *httpcontext.Adapter, logger *zap.Logger) *IngredientHandler {
	return &IngredientHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		deals:       deals,
	}
}

// @Summary Register ingredient
// @Tags ingredients
// @Router /api/v1/deals/{id}/ingredients [post]
func (h *IngredientHandler) Register(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	var in ingredientUC.RegisterInput
	if !h.decode(ctx, &in) {
		return
	}
	in.DealID = pathParam(ctx, "id")
	in.CreatedBy = participantID
	if in.OwnerID == "" {
		in.OwnerID = participantID
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if !h.member(ctx, stdCtx, h.deals, in.DealID, participantID) {
		return
	}
	ing, err := h.uc.Register(stdCtx, in)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, ing)
}

// @Summary List ingredients of a deal
// @Tags ingredients
// @Router /api/v1/deals/{id}/ingredients [get]
func (h *IngredientHandler) List(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	filter := repository.IngredientFilter{
		DealID:  pathParam(ctx, "id"),
		Type:    query(ctx, "type"),
		OwnerID: query(ctx, "owner_id"),
		Limit:   parseInt(query(ctx, "limit"), 50),
		Offset:  parseInt(query(ctx, "offset"), 0),
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

// @Summary Get ingredient
// @Tags ingredients
// @Router /api/v1/ingredients/{id} [get]
func (h *IngredientHandler) Get(ctx *fasthttp.RequestCtx) {
	_, cancel, ing, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()
	h.respondSuccess(ctx, http.StatusOK, ing)
}

// @Summary Edit an unlocked ingredient
// @Tags ingredients
// @Router /api/v1/ingredients/{id} [patch]
func (h *IngredientHandler) Update(ctx *fasthttp.RequestCtx) {
	var changes domain.IngredientChanges
	if !h.decode(ctx, &changes) {
		return
	}
	stdCtx, cancel, ing, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.Update(stdCtx, ing.ID, changes)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Lock status of an ingredient
// @Tags ingredients
// @Router /api/v1/ingredients/{id}/lock [get]
func (h *IngredientHandler) LockStatus(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel, ing, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	locked, err := h.uc.IsLocked(stdCtx, ing.ID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.LockStatus{IngredientID: ing.ID, Locked: locked})
}

// load resolves the path ingredient and checks the caller's membership.
// On success the caller owns cancel.
func (h *IngredientHandler) load(ctx *fasthttp.RequestCtx) (stdCtx context.Context, cancel context.CancelFunc, ing *domain.Ingredient, ok bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, nil, false
	}
	stdCtx, cancel = h.requestContext(ctx)
	ing, err := h.uc.Get(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return nil, nil, nil, false
	}
	if !h.member(ctx, stdCtx, h.deals, ing.DealID, participantID) {
		cancel()
		return nil, nil, nil, false
	}
	return stdCtx, cancel, ing, true
}
