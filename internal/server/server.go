// Package server exposes the vault over a JSON HTTP API plus a websocket
// event stream. Mutating requests are serialized so the ledger sees one
// operation at a time.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EzequielArce/KipuBankV3/internal/events"
	"github.com/EzequielArce/KipuBankV3/internal/metrics"
	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

// Server handles the API surface for one vault.
type Server struct {
	mu       sync.Mutex // global sequential executor for mutating calls
	vault    *vault.Vault
	bc       *events.Broadcaster
	decimals map[vault.Address]int32
	log      zerolog.Logger
}

// New builds a server. decimals maps assets to display decimals; assets
// missing from the map render in smallest units.
func New(v *vault.Vault, bc *events.Broadcaster, decimals map[vault.Address]int32, log zerolog.Logger) *Server {
	if decimals == nil {
		decimals = map[vault.Address]int32{}
	}
	return &Server{vault: v, bc: bc, decimals: decimals, log: log}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /deposit", s.handleDeposit)
	mux.HandleFunc("POST /deposit/token", s.handleDepositToken)
	mux.HandleFunc("POST /deposit/native", s.handleDepositNative)
	mux.HandleFunc("POST /withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /admin/capacity", s.handleSetCapacity)
	mux.HandleFunc("POST /admin/ceiling", s.handleSetCeiling)
	mux.HandleFunc("POST /admin/grant", s.handleGrant)
	mux.HandleFunc("POST /admin/revoke", s.handleRevoke)
	mux.HandleFunc("GET /balance/{addr}", s.handleBalance)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /quote", s.handleQuote)
	mux.HandleFunc("GET /pair", s.handlePair)
	if s.bc != nil {
		mux.Handle("GET /events", s.bc)
	}
	return mux
}

type depositRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount"`
	MinOut string `json:"min_out,omitempty"`
}

type depositResponse struct {
	User             string `json:"user"`
	AmountOut        string `json:"amount_out"`
	AmountOutDisplay string `json:"amount_out_display"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	// The direct path accepts only the reference asset; token deposits must
	// use the swap route.
	if req.Asset != "" && vault.Address(req.Asset) != s.vault.ReferenceAsset() {
		s.writeErr(w, fmt.Errorf("direct deposit of %s: %w", req.Asset, vault.ErrUnsupportedAssetPath))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.mu.Lock()
	err = s.vault.Deposit(vault.Address(req.User), amount)
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, depositResponse{
		User:             req.User,
		AmountOut:        amount.String(),
		AmountOutDisplay: s.display(s.vault.ReferenceAsset(), amount),
	})
}

func (s *Server) handleDepositToken(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	minOut, err := parseOptionalAmount(req.MinOut)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.mu.Lock()
	out, err := s.vault.DepositToken(vault.Address(req.User), vault.Address(req.Asset), amount, minOut)
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, depositResponse{
		User:             req.User,
		AmountOut:        out.String(),
		AmountOutDisplay: s.display(s.vault.ReferenceAsset(), out),
	})
}

func (s *Server) handleDepositNative(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	minOut, err := parseOptionalAmount(req.MinOut)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.mu.Lock()
	out, err := s.vault.DepositNative(vault.Address(req.User), amount, minOut)
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, depositResponse{
		User:             req.User,
		AmountOut:        out.String(),
		AmountOutDisplay: s.display(s.vault.ReferenceAsset(), out),
	})
}

type withdrawRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.mu.Lock()
	err = s.vault.Withdraw(vault.Address(req.User), amount)
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]string{
		"user":           req.User,
		"amount":         amount.String(),
		"amount_display": s.display(s.vault.ReferenceAsset(), amount),
	})
}

type adminRequest struct {
	Caller   string `json:"caller"`
	Value    string `json:"value,omitempty"`
	Identity string `json:"identity,omitempty"`
}

func (s *Server) handleSetCapacity(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decode(w, r, &req) {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.mu.Lock()
	err = s.vault.SetCapacity(vault.Address(req.Caller), value)
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"capacity": value.String()})
}

func (s *Server) handleSetCeiling(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decode(w, r, &req) {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.mu.Lock()
	err = s.vault.SetWithdrawalCeiling(vault.Address(req.Caller), value)
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"withdrawal_ceiling": value.String()})
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	err := s.vault.GrantAdmin(vault.Address(req.Caller), vault.Address(req.Identity))
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"granted": req.Identity})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	err := s.vault.RevokeAdmin(vault.Address(req.Caller), vault.Address(req.Identity))
	s.mu.Unlock()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"revoked": req.Identity})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := vault.Address(r.PathValue("addr"))
	balance := s.vault.BalanceOf(addr)
	s.writeJSON(w, map[string]string{
		"user":            string(addr),
		"balance":         balance.String(),
		"balance_display": s.display(s.vault.ReferenceAsset(), balance),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total := s.vault.TotalDeposited()
	s.writeJSON(w, map[string]any{
		"reference_asset":    string(s.vault.ReferenceAsset()),
		"total_deposited":    total.String(),
		"total_display":      s.display(s.vault.ReferenceAsset(), total),
		"capacity":           s.vault.Capacity().String(),
		"withdrawal_ceiling": s.vault.WithdrawalCeiling().String(),
		"deposit_count":      s.vault.DepositCount(),
		"withdraw_count":     s.vault.WithdrawCount(),
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amountIn, err := parseAmount(q.Get("amount_in"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	reserveIn, err := parseAmount(q.Get("reserve_in"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	reserveOut, err := parseAmount(q.Get("reserve_out"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out, err := vault.Quote(amountIn, reserveIn, reserveOut)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]string{
		"amount_out":         out.String(),
		"amount_out_display": s.display(s.vault.ReferenceAsset(), out),
	})
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr, err := s.vault.PairAddress(vault.Address(q.Get("asset_a")), vault.Address(q.Get("asset_b")))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"pair": string(addr)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"malformed request: %s"}`, err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	metrics.RejectsTotal.WithLabelValues(reasonFor(err)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, vault.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, vault.ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, vault.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, vault.ErrInsufficientBalance):
		return "balance"
	case errors.Is(err, vault.ErrThresholdExceeded):
		return "threshold"
	case errors.Is(err, vault.ErrInsufficientOutput):
		return "slippage"
	case errors.Is(err, vault.ErrLiquidityInsufficient):
		return "liquidity"
	case errors.Is(err, vault.ErrPairNotFound):
		return "pair"
	case errors.Is(err, vault.ErrInvalidAmount), errors.Is(err, vault.ErrInvalidAddress):
		return "invalid_input"
	default:
		return "other"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, vault.ErrCapacityExceeded),
		errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrThresholdExceeded),
		errors.Is(err, vault.ErrInsufficientOutput),
		errors.Is(err, vault.ErrLiquidityInsufficient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vault.ErrPairNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// display renders a smallest-unit amount in the asset's display units.
func (s *Server) display(asset vault.Address, amount *big.Int) string {
	scale, ok := s.decimals[asset]
	if !ok {
		return amount.String()
	}
	return decimal.NewFromBigInt(amount, -scale).String()
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing amount: %w", vault.ErrInvalidAmount)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q: %w", raw, vault.ErrInvalidAmount)
	}
	return value, nil
}

func parseOptionalAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	return parseAmount(raw)
}
