package server

import (
	"net/http"

	"nftlend/native/assets"
)

func (s *Server) devnetToken(r *http.Request) (*assets.Token, error) {
	addr, err := parseAddress("addr", chiParam(r, "addr"))
	if err != nil {
		return nil, err
	}
	token, ok := s.ledger.Token(addr)
	if !ok {
		return nil, assets.ErrTokenNotFound
	}
	return token, nil
}

func (s *Server) devnetCollection(r *http.Request) (*assets.Collection, error) {
	addr, err := parseAddress("addr", chiParam(r, "addr"))
	if err != nil {
		return nil, err
	}
	collection, ok := s.ledger.Collection(addr)
	if !ok {
		return nil, assets.ErrTokenNotFound
	}
	return collection, nil
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.devnetToken(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req mintTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := token.Mint(to, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: amountString(token.BalanceOf(to))})
}

func (s *Server) handleApproveToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.devnetToken(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req approveTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := token.Approve(caller(r), spender, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleMintNFT(w http.ResponseWriter, r *http.Request) {
	collection, err := s.devnetCollection(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req mintNFTRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tokenID, err := parseAmount("tokenId", req.TokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := collection.Mint(to, tokenID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleApproveNFT(w http.ResponseWriter, r *http.Request) {
	collection, err := s.devnetCollection(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req approveNFTRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Operator != nil {
		collection.SetApprovalForAll(caller(r), spender, *req.Operator)
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	tokenID, err := parseAmount("tokenId", req.TokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := collection.Approve(caller(r), spender, tokenID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleOraclePrice(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chiParam(r, "addr"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	feed, ok := s.ledger.Oracle(addr)
	if !ok {
		s.writeError(w, r, assets.ErrTokenNotFound)
		return
	}
	var req oraclePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updatedAt := req.UpdatedAt
	if updatedAt == 0 {
		updatedAt = uint64(s.now().Unix())
	}
	if err := feed.Set(price, updatedAt); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
