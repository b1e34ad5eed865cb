package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/pool"
	"floorVault/internal/vault"
)

// Vault is the part of vault.Orchestrator served over HTTP.
type Vault interface {
	Positions(ctx context.Context) (model.Positions, error)
	VaultInfo(ctx context.Context) (model.VaultInfo, error)
	IntrinsicMinimumValue(ctx context.Context) (*uint256.Int, error)
	AccumulatedFees(ctx context.Context) (*uint256.Int, *uint256.Int, error)
	CollateralAmount(ctx context.Context) (*uint256.Int, error)
	StakingContract(ctx context.Context) (common.Address, bool, error)
	Shift(ctx context.Context, caller common.Address) (vault.Result, error)
	Slide(ctx context.Context, caller common.Address) (vault.Result, error)
}

// Server exposes vault reads and the permissionless rebalances.
type Server struct {
	router *mux.Router
	vault  Vault
	caller common.Address
	logger *zap.Logger
}

// NewServer routes requests to v. POSTs without a caller in the body act as caller.
func NewServer(v Vault, caller common.Address, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{router: mux.NewRouter(), vault: v, caller: caller, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/vault").Subrouter()
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/imv", s.handleIMV).Methods(http.MethodGet)
	api.HandleFunc("/fees", s.handleFees).Methods(http.MethodGet)
	api.HandleFunc("/collateral", s.handleCollateral).Methods(http.MethodGet)
	api.HandleFunc("/staking", s.handleStaking).Methods(http.MethodGet)
	api.HandleFunc("/shift", s.handleRebalance(s.vault.Shift)).Methods(http.MethodPost)
	api.HandleFunc("/slide", s.handleRebalance(s.vault.Slide)).Methods(http.MethodPost)

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer wraps the handler with timeouts for addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if _, err := s.vault.Positions(r.Context()); err != nil {
		status, code = "uninitialized", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.vault.VaultInfo(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

type positionView struct {
	Tier      string `json:"tier"`
	LowerTick int32  `json:"lower_tick"`
	UpperTick int32  `json:"upper_tick"`
	Liquidity string `json:"liquidity"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.vault.Positions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]positionView, 0, len(model.Tiers))
	for _, tier := range model.Tiers {
		p := positions.Get(tier)
		out = append(out, positionView{Tier: tier.String(), LowerTick: p.LowerTick, UpperTick: p.UpperTick, Liquidity: fixedpoint.OrZero(p.Liquidity).Dec()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIMV(w http.ResponseWriter, r *http.Request) {
	imv, err := s.vault.IntrinsicMinimumValue(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"imv": imv.Dec(), "imv_decimal": fixedpoint.FormatWad(imv)})
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	fees0, fees1, err := s.vault.AccumulatedFees(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"token0": fixedpoint.OrZero(fees0).Dec(), "token1": fixedpoint.OrZero(fees1).Dec()})
}

func (s *Server) handleCollateral(w http.ResponseWriter, r *http.Request) {
	amount, err := s.vault.CollateralAmount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"collateral": fixedpoint.OrZero(amount).Dec()})
}

func (s *Server) handleStaking(w http.ResponseWriter, r *http.Request) {
	addr, ok, err := s.vault.StakingContract(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"configured": ok}
	if ok {
		resp["address"] = addr.Hex()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type rebalanceRequest struct {
	Caller string `json:"caller"`
}

type rebalanceResponse struct {
	OperationID  string          `json:"operation_id,omitempty"`
	Kind         string          `json:"kind"`
	Noop         bool            `json:"noop"`
	Instructions int             `json:"instructions"`
	Info         model.VaultInfo `json:"info"`
}

func (s *Server) handleRebalance(op func(context.Context, common.Address) (vault.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := s.caller
		if r.ContentLength != 0 {
			var req rebalanceRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
				return
			}
			if req.Caller != "" {
				if !common.IsHexAddress(req.Caller) {
					s.writeJSON(w, http.StatusBadRequest, errorBody("invalid caller address"))
					return
				}
				caller = common.HexToAddress(req.Caller)
			}
		}

		res, err := op(r.Context(), caller)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, rebalanceResponse{
			OperationID:  res.OperationID,
			Kind:         string(res.Plan.Kind),
			Noop:         res.Plan.Noop,
			Instructions: len(res.Plan.Instructions),
			Info:         res.Info,
		})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrNotInitialized), errors.Is(err, vault.ErrHalted), errors.Is(err, pool.ErrBatchPending):
		return http.StatusServiceUnavailable
	case errors.Is(err, vault.ErrReentrant):
		return http.StatusConflict
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrZeroAddress), errors.Is(err, model.ErrZeroAmount), errors.Is(err, model.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsolvency), errors.Is(err, model.ErrTierOrdering), errors.Is(err, model.ErrFloorDecrease),
		errors.Is(err, model.ErrInsufficientReserves), errors.Is(err, model.ErrNoLiquidity):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(message string) map[string]any {
	return map[string]any{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, code, errorBody(err.Error()))
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapper.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
