package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/server/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testPoolID = common.HexToHash("0x5555555555555555555555555555555555555555555555555555555555555555")

// fakePoolEngine serves a single pool and returns configured errors from the
// settlement transitions.
type fakePoolEngine struct {
	pool      domain.Pool
	submitErr error
	finalErr  error
}

func (f *fakePoolEngine) GetPool(id common.Hash) (domain.Pool, error) {
	if id != f.pool.ID {
		return domain.Pool{}, domain.ErrPoolNotFound
	}
	return f.pool, nil
}

func (f *fakePoolEngine) SubmitFinalReferenceValue(_ common.Address, _ common.Hash, _ *big.Int, _ bool) error {
	return f.submitErr
}

func (f *fakePoolEngine) ChallengeFinalReferenceValue(common.Address, common.Hash, *big.Int) error {
	return f.submitErr
}

func (f *fakePoolEngine) Finalize(common.Hash) error { return f.finalErr }

type fakePoolStore struct {
	pools []domain.Pool
}

func (s *fakePoolStore) Upsert(context.Context, domain.Pool) error { return nil }

func (s *fakePoolStore) GetByID(context.Context, common.Hash) (domain.Pool, error) {
	return domain.Pool{}, domain.ErrPoolNotFound
}

func (s *fakePoolStore) ListAll(context.Context) ([]domain.Pool, error) {
	return s.pools, nil
}

func (s *fakePoolStore) ListUnconfirmedExpired(context.Context, int64) ([]domain.Pool, error) {
	return nil, nil
}

func samplePool() domain.Pool {
	return domain.Pool{
		ID:                        testPoolID,
		ReferenceAsset:            "BTC/USD",
		ExpiryTime:                1_900_000,
		Floor:                     big.NewInt(1),
		Inflection:                big.NewInt(2),
		Cap:                       big.NewInt(3),
		Gradient:                  big.NewInt(4),
		Capacity:                  big.NewInt(5),
		CollateralBalance:         big.NewInt(6),
		StatusFinalReferenceValue: domain.PoolStatusOpen,
	}
}

// poolMux routes with the same patterns the server registers, so path
// parameters resolve.
func poolMux(h *handler.PoolHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pools", h.ListPools)
	mux.HandleFunc("GET /api/pools/{id}", h.GetPool)
	mux.HandleFunc("POST /api/pools/{id}/final-value", h.SubmitFinalValue)
	mux.HandleFunc("POST /api/pools/{id}/challenge", h.Challenge)
	mux.HandleFunc("POST /api/pools/{id}/finalize", h.Finalize)
	return mux
}

func TestGetPool_Found(t *testing.T) {
	h := handler.NewPoolHandler(&fakePoolEngine{pool: samplePool()}, &fakePoolStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/pools/"+testPoolID.Hex(), nil)
	rr := httptest.NewRecorder()
	poolMux(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body)
	}
	var resp struct {
		ID             string `json:"id"`
		ReferenceAsset string `json:"reference_asset"`
		Status         string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.ID != testPoolID.Hex() || resp.ReferenceAsset != "BTC/USD" || resp.Status != "open" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestGetPool_Unknown(t *testing.T) {
	h := handler.NewPoolHandler(&fakePoolEngine{pool: samplePool()}, &fakePoolStore{}, discardLogger())

	other := common.HexToHash("0x6666666666666666666666666666666666666666666666666666666666666666")
	req := httptest.NewRequest(http.MethodGet, "/api/pools/"+other.Hex(), nil)
	rr := httptest.NewRecorder()
	poolMux(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGetPool_BadID(t *testing.T) {
	h := handler.NewPoolHandler(&fakePoolEngine{pool: samplePool()}, &fakePoolStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/pools/not-a-hash", nil)
	rr := httptest.NewRecorder()
	poolMux(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestListPools_Paginates(t *testing.T) {
	store := &fakePoolStore{}
	for i := 0; i < 5; i++ {
		p := samplePool()
		p.ID = common.BigToHash(big.NewInt(int64(i + 1)))
		store.pools = append(store.pools, p)
	}
	h := handler.NewPoolHandler(&fakePoolEngine{pool: samplePool()}, store, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/pools?limit=2&offset=3", nil)
	rr := httptest.NewRecorder()
	poolMux(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Pools []json.RawMessage `json:"pools"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if len(resp.Pools) != 2 || resp.Total != 5 {
		t.Fatalf("page = %d items of total %d, want 2 of 5", len(resp.Pools), resp.Total)
	}
}

func TestSubmitFinalValue_ProviderOnly(t *testing.T) {
	h := handler.NewPoolHandler(&fakePoolEngine{
		pool:      samplePool(),
		submitErr: domain.ErrNotDataProvider,
	}, &fakePoolStore{}, discardLogger())

	body := `{"caller": "` + callerHex + `", "value": "25000000000000000000000", "allow_challenge": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/pools/"+testPoolID.Hex()+"/final-value", strings.NewReader(body))
	rr := httptest.NewRecorder()
	poolMux(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestSubmitFinalValue_ReturnsPoolState(t *testing.T) {
	pool := samplePool()
	pool.StatusFinalReferenceValue = domain.PoolStatusSubmitted
	h := handler.NewPoolHandler(&fakePoolEngine{pool: pool}, &fakePoolStore{}, discardLogger())

	body := `{"caller": "` + callerHex + `", "value": "25000000000000000000000", "allow_challenge": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/pools/"+testPoolID.Hex()+"/final-value", strings.NewReader(body))
	rr := httptest.NewRecorder()
	poolMux(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Status != "submitted" {
		t.Fatalf("status = %q, want submitted", resp.Status)
	}
}

func TestFinalize_TimingConflict(t *testing.T) {
	h := handler.NewPoolHandler(&fakePoolEngine{
		pool:     samplePool(),
		finalErr: domain.ErrChallengePeriodNotExpired,
	}, &fakePoolStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/pools/"+testPoolID.Hex()+"/finalize", nil)
	rr := httptest.NewRecorder()
	poolMux(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}
