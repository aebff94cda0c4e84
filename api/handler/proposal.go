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
	proposalUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/proposal"
)

type ProposalHandler struct {
	baseHandler
	uc    *proposalUC.UseCase
	deals DealReader
}

func NewProposalHandler(uc *proposalUC.UseCase, deals DealReader, adapter *httpcontext.Adapter, logger *zap.Logger) *ProposalHandler {
	return &ProposalHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		deals:       deals,
	}
}

// @Summary Open a change proposal
// @Tags proposals
// @Router /api/v1/deals/{id}/proposals [post]
func (h *ProposalHandler) Create(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	var in proposalUC.CreateInput
	if !h.decode(ctx, &in) {
		return
	}
	in.DealID = pathParam(ctx, "id")
	in.ProposerID = participantID

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	p, err := h.uc.Create(stdCtx, in)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, p)
}

// @Summary List proposals of a deal
// @Tags proposals
// @Router /api/v1/deals/{id}/proposals [get]
func (h *ProposalHandler) List(ctx *fasthttp.RequestCtx) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return
	}
	filter := repository.ProposalFilter{
		DealID:        pathParam(ctx, "id"),
		FormulationID: query(ctx, "formulation_id"),
		Status:        query(ctx, "status"),
		Limit:         parseInt(query(ctx, "limit"), 50),
		Offset:        parseInt(query(ctx, "offset"), 0),
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

// @Summary Get proposal
// @Tags proposals
// @Router /api/v1/proposals/{id} [get]
func (h *ProposalHandler) Get(ctx *fasthttp.RequestCtx) {
	_, cancel, p, _, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()
	h.respondSuccess(ctx, http.StatusOK, p)
}

// @Summary Vote on a proposal
// @Tags proposals
// @Router /api/v1/proposals/{id}/votes [post]
func (h *ProposalHandler) Vote(ctx *fasthttp.RequestCtx) {
	var req transport.VoteRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.Approve == nil {
		h.badRequest(ctx, "approve: must be true or false")
		return
	}
	stdCtx, cancel, p, participantID, ok := h.load(ctx)
	if !ok {
		return
	}
	defer cancel()

	updated, err := h.uc.Vote(stdCtx, p.ID, participantID, *req.Approve)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// load resolves the path proposal. Voting eligibility is the proposal's
// own snapshot, so only deal membership is checked here.
func (h *ProposalHandler) load(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc, *domain.ChangeProposal, string, bool) {
	participantID := h.participant(ctx)
	if participantID == "" {
		return nil, nil, nil, "", false
	}
	stdCtx, cancel := h.requestContext(ctx)
	p, err := h.uc.Get(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return nil, nil, nil, "", false
	}
	if _, eligible := p.Approvals[participantID]; !eligible && !h.member(ctx, stdCtx, h.deals, p.DealID, participantID) {
		cancel()
		return nil, nil, nil, "", false
	}
	return stdCtx, cancel, p, participantID, true
}
