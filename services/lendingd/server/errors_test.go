package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"nftlend/native/assets"
	"nftlend/native/claims"
	"nftlend/native/lending"
)

func TestStatusForCategories(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{lending.ErrNotOwner, http.StatusForbidden},
		{lending.ErrProtocolPaused, http.StatusConflict},
		{lending.ErrLoanExpired, http.StatusConflict},
		{lending.ErrAmountZero, http.StatusBadRequest},
		{&lending.LengthMismatchError{Durations: 2, Rates: 1}, http.StatusBadRequest},
		{&lending.InsufficientLiquidityError{}, http.StatusUnprocessableEntity},
		{&lending.StalePriceError{Feed: lending.ErrAssetPriceOutdated}, http.StatusFailedDependency},
		{fmt.Errorf("wrapped: %w", lending.ErrPoolNotFound), http.StatusNotFound},
		{claims.ErrNotOwnerOrApproved, http.StatusForbidden},
		{claims.ErrClaimNotFound, http.StatusNotFound},
		{assets.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{assets.ErrTokenExists, http.StatusConflict},
		{badRequest("nope"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.status, statusFor(tc.err), "%v", tc.err)
	}
}
