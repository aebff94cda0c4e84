package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/api/transport"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	dealUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/deal"
)

type DealHandler struct {
	baseHandler
	uc *dealUC.UseCase
}

func NewDealHandler(uc *dealUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *DealHandler {
	return &DealHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Create deal
// @Tags deals
// @Router /api/v1/deals [post]
func (h *DealHandler) Create(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	var req transport.DealRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	participants := []string{participantID}
	for _, id := range req.Participants {
		if id != participantID {
			participants = append(participants, id)
		}
	}
	d, err := h.uc.Create(stdCtx, dealUC.CreateInput{
		Name:         req.Name,
		Currency:     req.Currency,
		Participants: participants,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, d)
}

// @Summary List the caller's deals
// @Tags deals
// @Router /api/v1/deals [get]
func (h *DealHandler) List(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	filter := repository.DealFilter{
		ParticipantID: participantID,
		Limit:         parseInt(query(ctx, "limit"), 50),
		Offset:        parseInt(query(ctx, "offset"), 0),
	}
	if isAdmin(ctx) {
		filter.ParticipantID = query(ctx, "participant_id")
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	deals, err := h.uc.List(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondList(ctx, deals, len(deals), filter.Limit, filter.Offset)
}

// @Summary Get deal
// @Tags deals
// @Router /api/v1/deals/{id} [get]
func (h *DealHandler) Get(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	dealID := pathParam(ctx, "id")
	if !h.member(ctx, stdCtx, h.uc, dealID, participantID) {
		return
	}
	d, err := h.uc.Get(stdCtx, dealID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, d)
}

// @Summary Add participant
// @Tags deals
// @Router /api/v1/deals/{id}/participants [post]
func (h *DealHandler) AddParticipant(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	var req transport.ParticipantRequest
	if !h.decode(ctx, &req) {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	dealID := pathParam(ctx, "id")
	if !h.member(ctx, stdCtx, h.uc, dealID, participantID) {
		return
	}
	d, err := h.uc.AddParticipant(stdCtx, dealID, req.ParticipantID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.log(stdCtx).Info("participant added",
		zap.String("deal_id", dealID),
		zap.String("participant_id", req.ParticipantID),
		zap.String("added_by", participantID))
	h.respondSuccess(ctx, http.StatusOK, d)
}

// @Summary List participants with display names
// @Tags deals
// @Router /api/v1/deals/{id}/participants [get]
func (h *DealHandler) Participants(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	dealID := pathParam(ctx, "id")
	if !h.member(ctx, stdCtx, h.uc, dealID, participantID) {
		return
	}
	participants, err := h.uc.Participants(stdCtx, dealID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, participants)
}
