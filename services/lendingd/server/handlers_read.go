package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/native/lending"
	"nftlend/services/lendingd/indexer"
)

func (s *Server) pool(r *http.Request) (*lending.Pool, error) {
	id, err := parseUintParam(r, "id")
	if err != nil {
		return nil, err
	}
	return s.ledger.Registry.Pool(id)
}

func (s *Server) handleProtocolParams(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	asset, err := parseAddress("asset", query.Get("asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", query.Get("collection"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProtocolParamsView(s.ledger.Registry.ProtocolParams(asset, collection)))
}

func (s *Server) handleFeeBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress("asset", chiParam(r, "asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: amountString(s.ledger.Registry.FeeBalance(asset))})
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	var (
		owner      *common.Address
		collection *common.Address
	)
	if raw := r.URL.Query().Get("owner"); raw != "" {
		addr, err := parseAddress("owner", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		owner = &addr
	}
	if raw := r.URL.Query().Get("collection"); raw != "" {
		addr, err := parseAddress("collection", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		collection = &addr
	}
	pools := s.ledger.Registry.Pools()
	views := make([]poolView, 0, len(pools))
	for _, pool := range pools {
		if owner != nil && pool.Owner() != *owner {
			continue
		}
		if collection != nil && pool.Collection() != *collection {
			continue
		}
		views = append(views, toPoolView(pool.Info()))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool.Info()))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ceiling, err := pool.MaxLoanAmount()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: amountString(ceiling)})
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pool(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	loans := pool.Loans()
	views := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		if status != "" && loan.Status.String() != status {
			continue
		}
		views = append(views, toLoanView(loan))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
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
	loan, err := pool.Loan(loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanView(loan))
}

func (s *Server) handleStoredLoan(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "record store unavailable"})
		return
	}
	poolID, err := parseUintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loanID, err := parseUintParam(r, "loanID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loan, ok, err := s.store.GetLoan(poolID, loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, lending.ErrLoanNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toLoanView(loan))
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", r.URL.Query().Get("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	held := s.ledger.Claims.ClaimsOf(owner)
	views := make([]claimView, 0, len(held))
	for _, claim := range held {
		views = append(views, toClaimView(claim))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claimID, err := parseUintParam(r, "claimID")
	if err != nil {
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

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event index unavailable"})
		return
	}
	query := r.URL.Query()
	filter := indexer.Filter{Type: strings.TrimSpace(query.Get("type"))}
	if raw := strings.TrimSpace(query.Get("pool")); raw != "" {
		poolID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, badRequest("pool: invalid identifier"))
			return
		}
		filter.PoolID = &poolID
	}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, badRequest("after: invalid cursor"))
			return
		}
		filter.After = after
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, badRequest("limit: invalid value"))
			return
		}
		filter.Limit = limit
	}
	records, err := s.indexer.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]eventView, 0, len(records))
	for _, record := range records {
		view, err := toEventView(record)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}
