package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nftlend/config"
	"nftlend/core/events"
	"nftlend/native/lending"
	"nftlend/services/lendingd/indexer"
	"nftlend/services/lendingd/ledger"
	"nftlend/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var (
	ownerAddr      = common.HexToAddress("0x1000000000000000000000000000000000000002")
	tokenAddr      = common.HexToAddress("0x2000000000000000000000000000000000000001")
	collectionAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	assetOracle    = common.HexToAddress("0x2000000000000000000000000000000000000003")
	floorOracle    = common.HexToAddress("0x2000000000000000000000000000000000000004")
	lenderAddr     = common.HexToAddress("0x3000000000000000000000000000000000000001")
	borrowerAddr   = common.HexToAddress("0x3000000000000000000000000000000000000002")
	strangerAddr   = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

type harness struct {
	t       *testing.T
	server  *Server
	handler http.Handler
	ledger  *ledger.Ledger
	store   *lending.Store
	indexer *indexer.Indexer
	hub     *Hub
	now     time.Time
}

type harnessOption func(*Options)

func withoutDevnet() harnessOption { return func(o *Options) { o.Devnet = false } }

func withRateLimit(limit RateLimit) harnessOption {
	return func(o *Options) { o.RateLimit = limit }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	genesis, err := config.Load(filepath.Join("..", "..", "..", "config", "testdata", "devnet.toml"))
	require.NoError(t, err)

	h := &harness{t: t, now: time.Unix(1_700_000_000, 0), hub: NewHub()}
	clock := func() time.Time { return h.now }

	idx, err := indexer.Open(fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	h.indexer = idx
	h.store = lending.NewStore(storage.NewMemDB())

	h.ledger, err = ledger.Bootstrap(genesis, ledger.Options{
		Emitter: events.Fanout{h.hub, idx},
		Store:   h.store,
		Clock:   clock,
	})
	require.NoError(t, err)

	options := Options{
		Ledger:  h.ledger,
		Store:   h.store,
		Indexer: idx,
		Hub:     h.hub,
		Auth:    AuthConfig{HMACSecret: testSecret, Issuer: "nftlend"},
		Devnet:  true,
		Clock:   clock,
	}
	for _, opt := range opts {
		opt(&options)
	}
	h.server, err = New(options)
	require.NoError(t, err)
	h.handler = h.server.Handler()
	return h
}

func (h *harness) token(addr common.Address) string {
	h.t.Helper()
	token, err := h.server.Authenticator().IssueToken(addr, time.Hour)
	require.NoError(h.t, err)
	return token
}

// do sends a request signed as caller, or unsigned when caller is nil.
func (h *harness) do(method, path string, caller *common.Address, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+h.token(*caller))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) expect(rec *httptest.ResponseRecorder, status int) {
	h.t.Helper()
	require.Equalf(h.t, status, rec.Code, "body: %s", rec.Body.String())
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func addr(a common.Address) *common.Address { return &a }

// openPool creates the default basket as lenderAddr and funds it.
func (h *harness) openPool(liquidity string) createPoolResponse {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/v1/pools", addr(lenderAddr), createPoolRequest{
		Asset:             tokenAddr.Hex(),
		Collection:        collectionAddr.Hex(),
		FloorPricePercent: 2,
		Durations:         []uint64{30},
		Rates:             []uint64{2},
	})
	h.expect(rec, http.StatusCreated)
	pool := decodeBody[createPoolResponse](h.t, rec)
	if liquidity == "" {
		return pool
	}
	h.expect(h.do(http.MethodPost, "/v1/devnet/tokens/"+tokenAddr.Hex()+"/approve", addr(lenderAddr),
		approveTokenRequest{Spender: pool.Address, Amount: liquidity}), http.StatusNoContent)
	h.expect(h.do(http.MethodPost, fmt.Sprintf("/v1/pools/%d/deposit", pool.ID), addr(lenderAddr),
		amountRequest{Amount: liquidity}), http.StatusOK)
	return pool
}

func (h *harness) raw(method, path string, body io.Reader, authorization string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func mustID(t *testing.T, dec string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(dec)
	require.NoError(t, err)
	return v
}
