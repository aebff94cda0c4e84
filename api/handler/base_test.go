package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.Validation("quantity", "must not be negative"), http.StatusBadRequest, "INVALID"},
		{domain.NewError(domain.ErrCodeState, "already archived"), http.StatusConflict, "INVALID_STATE"},
		{domain.NewError(domain.ErrCodeLocked, "formulation is active"), http.StatusLocked, "LOCKED"},
		{domain.NewError(domain.ErrCodeConsensus, "proposal resolved"), http.StatusConflict, "CONSENSUS"},
		{domain.NewError(domain.ErrCodeCalculation, "pool below zero"), http.StatusUnprocessableEntity, "CALCULATION"},
		{domain.NewError(domain.ErrCodeForbidden, "not a member"), http.StatusForbidden, "FORBIDDEN"},
		{domain.ErrDealNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("load: %w", domain.ErrDealNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "INTERNAL"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 25, parseInt("25", 50))
	assert.Equal(t, 50, parseInt("", 50))
	assert.Equal(t, 50, parseInt("ten", 50))
}
