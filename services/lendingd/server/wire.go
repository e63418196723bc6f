package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"nftlend/native/claims"
	"nftlend/native/lending"
	"nftlend/services/lendingd/indexer"
)

const maxBodyBytes = 1 << 20

type tierView struct {
	Duration uint64 `json:"duration"`
	Rate     uint64 `json:"rate"`
	Enabled  bool   `json:"enabled"`
}

type poolView struct {
	ID                uint64     `json:"id"`
	Address           string     `json:"address"`
	Owner             string     `json:"owner"`
	Asset             string     `json:"asset"`
	Collection        string     `json:"collection"`
	FloorPricePercent uint64     `json:"floorPricePercent"`
	Tiers             []tierView `json:"tiers"`
	Liquidity         string     `json:"liquidity"`
	Escrowed          string     `json:"escrowed"`
	Status            string     `json:"status"`
	AutomaticApproval bool       `json:"automaticApproval"`
	AcceptRefinance   bool       `json:"acceptRefinance"`
	LoanCount         uint64     `json:"loanCount"`
}

type loanView struct {
	ID                uint64 `json:"id"`
	CollateralTokenID string `json:"collateralTokenId"`
	Principal         string `json:"principal"`
	AmountPaid        string `json:"amountPaid"`
	Duration          uint64 `json:"duration"`
	InterestPercent   uint64 `json:"interestPercent"`
	InterestAmount    string `json:"interestAmount"`
	PlatformFee       string `json:"platformFee"`
	TotalOwed         string `json:"totalOwed"`
	Remaining         string `json:"remaining"`
	BorrowerClaimID   uint64 `json:"borrowerClaimId"`
	LenderClaimID     uint64 `json:"lenderClaimId"`
	Status            string `json:"status"`
	CreatedAt         uint64 `json:"createdAt"`
	ExpiresAt         uint64 `json:"expiresAt"`
	ResolvedAt        uint64 `json:"resolvedAt,omitempty"`
}

type protocolParamsView struct {
	Paused              bool   `json:"paused"`
	PlatformFee         uint64 `json:"platformFee"`
	AssetEnabled        bool   `json:"assetEnabled"`
	AssetOracle         string `json:"assetOracle"`
	CollateralEnabled   bool   `json:"collateralEnabled"`
	CollateralOracle    string `json:"collateralOracle"`
	FloorPriceStaleness uint64 `json:"floorPriceStaleness"`
	AssetPriceStaleness uint64 `json:"assetPriceStaleness"`
}

type eventView struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

type amountView struct {
	Amount string `json:"amount"`
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func toPoolView(info lending.PoolInfo) poolView {
	view := poolView{
		ID:                info.ID,
		Address:           info.Address.Hex(),
		Owner:             info.Owner.Hex(),
		Asset:             info.Asset.Hex(),
		Collection:        info.Collection.Hex(),
		FloorPricePercent: info.FloorPricePercent,
		Tiers:             make([]tierView, 0, len(info.Tiers)),
		Liquidity:         amountString(info.Liquidity),
		Escrowed:          amountString(info.Escrowed),
		Status:            info.Status.String(),
		AutomaticApproval: info.AutomaticApproval,
		AcceptRefinance:   info.AcceptRefinance,
		LoanCount:         info.LoanCount,
	}
	for _, tier := range info.Tiers {
		view.Tiers = append(view.Tiers, tierView{Duration: tier.Duration, Rate: tier.Rate, Enabled: tier.Enabled})
	}
	return view
}

func toLoanView(loan *lending.Loan) loanView {
	return loanView{
		ID:                loan.ID,
		CollateralTokenID: amountString(loan.CollateralTokenID),
		Principal:         amountString(loan.Principal),
		AmountPaid:        amountString(loan.AmountPaid),
		Duration:          loan.Duration,
		InterestPercent:   loan.InterestPercent,
		InterestAmount:    amountString(loan.InterestAmount),
		PlatformFee:       amountString(loan.PlatformFee),
		TotalOwed:         amountString(loan.TotalOwed()),
		Remaining:         amountString(loan.Remaining()),
		BorrowerClaimID:   loan.BorrowerClaimID,
		LenderClaimID:     loan.LenderClaimID,
		Status:            loan.Status.String(),
		CreatedAt:         loan.CreatedAt,
		ExpiresAt:         loan.Expires(),
		ResolvedAt:        loan.ResolvedAt,
	}
}

func toProtocolParamsView(params lending.ProtocolParams) protocolParamsView {
	return protocolParamsView{
		Paused:              params.Paused,
		PlatformFee:         params.PlatformFee,
		AssetEnabled:        params.AssetEnabled,
		AssetOracle:         params.AssetOracle.Hex(),
		CollateralEnabled:   params.CollateralEnabled,
		CollateralOracle:    params.CollateralOracle.Hex(),
		FloorPriceStaleness: params.FloorPriceStaleness,
		AssetPriceStaleness: params.AssetPriceStaleness,
	}
}

func toEventView(record indexer.EventRecord) (eventView, error) {
	evt, err := record.Event()
	if err != nil {
		return eventView{}, err
	}
	return eventView{
		ID:         record.ID.String(),
		Seq:        record.Seq,
		Type:       evt.Type,
		Attributes: evt.Attributes,
		CreatedAt:  record.CreatedAt.Unix(),
	}, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if err == io.EOF {
			return badRequest("request body required")
		}
		return badRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, badRequest(fmt.Sprintf("%s: invalid address %q", field, raw))
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	value, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, badRequest(fmt.Sprintf("%s: invalid amount %q", field, raw))
	}
	return value, nil
}

func parseUintParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, badRequest(fmt.Sprintf("%s: invalid identifier %q", name, raw))
	}
	return value, nil
}

type claimView struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Pool     string `json:"pool"`
	Role     string `json:"role"`
	Approved string `json:"approved,omitempty"`
}

func toClaimView(claim claims.Claim) claimView {
	view := claimView{
		ID:    claim.ID,
		Owner: claim.Owner.Hex(),
		Pool:  claim.Pool.Hex(),
		Role:  claim.Role.String(),
	}
	if claim.Approved != (common.Address{}) {
		view.Approved = claim.Approved.Hex()
	}
	return view
}

type assetListingRequest struct {
	Asset       string `json:"asset"`
	Oracle      string `json:"oracle"`
	PlatformFee uint64 `json:"platformFee"`
	Enabled     bool   `json:"enabled"`
}

type collateralListingRequest struct {
	Collection string `json:"collection"`
	Oracle     string `json:"oracle"`
	Enabled    bool   `json:"enabled"`
}

type withdrawFeesRequest struct {
	Asset string `json:"asset"`
	To    string `json:"to"`
}

type stalenessRequest struct {
	Floor *uint64 `json:"floor,omitempty"`
	Asset *uint64 `json:"asset,omitempty"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type createPoolRequest struct {
	Asset             string   `json:"asset"`
	Collection        string   `json:"collection"`
	FloorPricePercent uint64   `json:"floorPricePercent"`
	Durations         []uint64 `json:"durations"`
	Rates             []uint64 `json:"rates"`
	AutomaticApproval bool     `json:"automaticApproval"`
	AcceptRefinance   bool     `json:"acceptRefinance"`
}

type createPoolResponse struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type withdrawLiquidityRequest struct {
	To string `json:"to"`
}

type ratesRequest struct {
	Duration uint64 `json:"duration"`
	Rate     uint64 `json:"rate"`
	Enabled  bool   `json:"enabled"`
}

type createLoanRequest struct {
	Duration          uint64 `json:"duration"`
	Amount            string `json:"amount"`
	CollateralTokenID string `json:"collateralTokenId"`
}

type createLoanResponse struct {
	LoanID uint64 `json:"loanId"`
}

type payResponse struct {
	Paid      string `json:"paid"`
	Remaining string `json:"remaining"`
	Status    string `json:"status"`
}

type transferClaimRequest struct {
	To string `json:"to"`
}

type mintTokenRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approveTokenRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type mintNFTRequest struct {
	To      string `json:"to"`
	TokenID string `json:"tokenId"`
}

type approveNFTRequest struct {
	Spender  string `json:"spender"`
	TokenID  string `json:"tokenId,omitempty"`
	Operator *bool  `json:"operator,omitempty"`
}

type oraclePriceRequest struct {
	Price     string `json:"price"`
	UpdatedAt uint64 `json:"updatedAt,omitempty"`
}

func chiParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
