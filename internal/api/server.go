// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stakingRewards/internal/custody"
	"stakingRewards/internal/ledger"
	"stakingRewards/internal/model"
	"stakingRewards/internal/observability/metrics"
	"stakingRewards/internal/rewards"
	"stakingRewards/internal/storage"
)

const maxBodyBytes = 1 << 16

// Service is the ledger surface served over HTTP.
type Service interface {
	Initialize(ctx context.Context, params ledger.InitializeParams) (model.PoolID, error)
	Stake(ctx context.Context, poolID model.PoolID, staker common.Address, amount uint64) error
	Withdraw(ctx context.Context, poolID model.PoolID, staker common.Address, amount uint64) error
	ClaimRewards(ctx context.Context, poolID model.PoolID, staker common.Address) (uint64, error)
	Pool(ctx context.Context, poolID model.PoolID) (model.Pool, error)
	Staker(ctx context.Context, poolID model.PoolID, staker common.Address) (ledger.StakerView, error)
}

type InitializeRequest struct {
	ID           *uuid.UUID     `json:"id,omitempty"`
	Owner        common.Address `json:"owner"`
	StakingToken common.Address `json:"staking_token"`
	RewardsToken common.Address `json:"rewards_token"`
	RewardRate   uint64         `json:"reward_rate,string"`
	Duration     uint64         `json:"duration,string"`
}

type AmountRequest struct {
	Staker common.Address `json:"staker"`
	Amount uint64         `json:"amount,string"`
}

type ClaimRequest struct {
	Staker common.Address `json:"staker"`
}

type ClaimResponse struct {
	Claimed uint64 `json:"claimed,string"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type handler struct {
	svc    Service
	logger *zap.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(svc Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/pools", func(r chi.Router) {
		r.Post("/", h.initialize)
		r.Route("/{poolID}", func(r chi.Router) {
			r.Get("/", h.getPool)
			r.Post("/stake", h.stake)
			r.Post("/withdraw", h.withdraw)
			r.Post("/claim", h.claim)
			r.Get("/stakers/{staker}", h.getStaker)
		})
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) initialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !decode(w, r, &req) {
		return
	}
	params := ledger.InitializeParams{
		Owner:        req.Owner,
		StakingToken: req.StakingToken,
		RewardsToken: req.RewardsToken,
		RewardRate:   req.RewardRate,
		Duration:     req.Duration,
	}
	if req.ID != nil {
		params.ID = *req.ID
	}

	id, err := h.svc.Initialize(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pool, err := h.svc.Pool(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (h *handler) getPool(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(w, r)
	if !ok {
		return
	}
	pool, err := h.svc.Pool(r.Context(), poolID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *handler) stake(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.svc.Stake)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.svc.Withdraw)
}

type amountFunc func(ctx context.Context, poolID model.PoolID, staker common.Address, amount uint64) error

func (h *handler) amountOp(w http.ResponseWriter, r *http.Request, op amountFunc) {
	poolID, ok := poolIDParam(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := op(r.Context(), poolID, req.Staker, req.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeStaker(w, r, poolID, req.Staker)
}

func (h *handler) claim(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(w, r)
	if !ok {
		return
	}
	var req ClaimRequest
	if !decode(w, r, &req) {
		return
	}
	claimed, err := h.svc.ClaimRewards(r.Context(), poolID, req.Staker)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{Claimed: claimed})
}

func (h *handler) getStaker(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(w, r)
	if !ok {
		return
	}
	raw := chi.URLParam(r, "staker")
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid staker address"})
		return
	}
	h.writeStaker(w, r, poolID, common.HexToAddress(raw))
}

func (h *handler) writeStaker(w http.ResponseWriter, r *http.Request, poolID model.PoolID, staker common.Address) {
	view, err := h.svc.Staker(r.Context(), poolID, staker)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: rewards.CodeOf(err)})
}

// StatusOf maps an operation error to an HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, rewards.ErrAlreadyInitialized):
		return http.StatusConflict
	case errors.Is(err, storage.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, custody.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case rewards.KindOf(err) == rewards.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func poolIDParam(w http.ResponseWriter, r *http.Request) (model.PoolID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "poolID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid pool id"})
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
