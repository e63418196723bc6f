package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/native/lending"
)

// caller returns the address the auth middleware placed in the context.
func caller(r *http.Request) common.Address {
	addr, _ := CallerFromContext(r.Context())
	return addr
}

func (s *Server) handleAssetListing(w http.ResponseWriter, r *http.Request) {
	var req assetListingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	oracle, err := parseAddress("oracle", req.Oracle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Registry.ChangeAssetWhitelist(caller(r), req.Enabled, req.PlatformFee, asset, oracle); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCollateralListing(w http.ResponseWriter, r *http.Request) {
	var req collateralListingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	oracle, err := parseAddress("oracle", req.Oracle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Registry.ChangeCollateralWhitelist(caller(r), req.Enabled, collection, oracle); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handlePauseProtocol(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Registry.PauseProtocol(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleReEnableProtocol(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Registry.ReEnableProtocol(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.ledger.Registry.WithdrawFees(caller(r), asset, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: amountString(amount)})
}

func (s *Server) handleStaleness(w http.ResponseWriter, r *http.Request) {
	var req stalenessRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Floor == nil && req.Asset == nil {
		s.writeError(w, r, badRequest("floor or asset window required"))
		return
	}
	if err := s.ledger.Registry.SetPriceStaleness(caller(r), req.Floor, req.Asset); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleClaimRegistry(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Registry.SetClaimRegistry(caller(r), addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Registry.TransferOwnership(caller(r), addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, addr, err := s.ledger.Registry.CreatePool(caller(r), lending.PoolParams{
		Asset:             asset,
		Collection:        collection,
		FloorPricePercent: req.FloorPricePercent,
		Durations:         req.Durations,
		Rates:             req.Rates,
		AutomaticApproval: req.AutomaticApproval,
		AcceptRefinance:   req.AcceptRefinance,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPoolResponse{ID: id, Address: addr.Hex()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pool.DepositLiquidity(caller(r), amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool.Info()))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req withdrawLiquidityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := pool.WithdrawLiquidity(caller(r), to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: amountString(amount)})
}

func (s *Server) handlePauseBasket(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pool.PauseBasket(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool.Info()))
}

func (s *Server) handleActivateBasket(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pool.ActivateBasket(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool.Info()))
}

func (s *Server) handleUpdateRates(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ratesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pool.UpdateInterestRates(caller(r), req.Duration, req.Rate, req.Enabled); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool.Info()))
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req createLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tokenID, err := parseAmount("collateralTokenId", req.CollateralTokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loanID, err := pool.CreateLoan(caller(r), req.Duration, amount, tokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createLoanResponse{LoanID: loanID})
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loanID, err := parseUintParam(r, "loanID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	paid, err := pool.Pay(caller(r), amount, loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loan, err := pool.Loan(loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payResponse{
		Paid:      amountString(paid),
		Remaining: amountString(loan.Remaining()),
		Status:    loan.Status.String(),
	})
}

func (s *Server) handleClaimNFT(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loanID, err := parseUintParam(r, "loanID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pool.ClaimNFT(caller(r), loanID); err != nil {
		s.writeError(w, r, err)
		return
	}
	loan, err := pool.Loan(loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanView(loan))
}

func (s *Server) handleTransferClaim(w http.ResponseWriter, r *http.Request) {
	claimID, err := parseUintParam(r, "claimID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transferClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Claims.Transfer(caller(r), to, claimID); err != nil {
		s.writeError(w, r, err)
		return
	}
	claim, err := s.ledger.Claims.Claim(claimID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimView(claim))
}

func (s *Server) handleApproveClaim(w http.ResponseWriter, r *http.Request) {
	claimID, err := parseUintParam(r, "claimID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := parseAddress("address", req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Claims.Approve(caller(r), spender, claimID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
