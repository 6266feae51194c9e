package api

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fanpay/internal/checkout"
	"fanpay/internal/common/api"
	"fanpay/internal/payments"
	"fanpay/internal/store"
)

// SessionHandler exposes the step state machine over HTTP: one checkout
// session per wallet, with step actions dispatched by step id. Sessions live
// in memory for the life of the process, like the client-side flow they
// replace.
type SessionHandler struct {
	deps checkout.Deps

	mu       sync.Mutex
	sessions map[string]*checkout.Session
}

// NewSessionHandler creates the checkout session handler.
func NewSessionHandler(deps checkout.Deps) *SessionHandler {
	return &SessionHandler{
		deps:     deps,
		sessions: make(map[string]*checkout.Session),
	}
}

// Routes registers the checkout session routes.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/checkout/sessions", h.createSession)
	r.Get("/checkout/sessions/{address}", h.getSession)
	r.Delete("/checkout/sessions/{address}", h.resetSession)
	r.Post("/checkout/sessions/{address}/steps/{stepID}", h.runStep)
}

func (h *SessionHandler) session(address string) *checkout.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[address]
}

type createSessionRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required"`
	AssetID       int64  `json:"assetId" validate:"required"`
}

type sessionResponse struct {
	WalletAddress string                 `json:"wallet_address"`
	Flow          checkout.Snapshot      `json:"flow"`
	Result        *checkout.ActionResult `json:"result,omitempty"`
}

func (h *SessionHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	asset, err := h.deps.Gateway.Store().GetAsset(r.Context(), req.AssetID)
	if store.IsNotFound(err) {
		api.NotFound(w, "asset not found")
		return
	}
	if err != nil {
		api.InternalError(w, "failed to fetch asset")
		return
	}

	session := checkout.NewSession(req.WalletAddress, h.deps)
	if err := session.Flow().SelectAsset(asset); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	h.mu.Lock()
	h.sessions[req.WalletAddress] = session
	h.mu.Unlock()

	api.WriteData(w, http.StatusCreated, sessionResponse{
		WalletAddress: req.WalletAddress,
		Flow:          session.Flow().Snapshot(),
	})
}

func (h *SessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	session := h.session(address)
	if session == nil {
		api.NotFound(w, "no checkout session for wallet")
		return
	}

	api.WriteData(w, http.StatusOK, sessionResponse{
		WalletAddress: address,
		Flow:          session.Flow().Snapshot(),
	})
}

func (h *SessionHandler) resetSession(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	session := h.session(address)
	if session == nil {
		api.NotFound(w, "no checkout session for wallet")
		return
	}

	session.Flow().Reset()
	api.WriteData(w, http.StatusOK, sessionResponse{
		WalletAddress: address,
		Flow:          session.Flow().Snapshot(),
	})
}

type runStepRequest struct {
	Method      string           `json:"method,omitempty"`
	StakeAmount *decimal.Decimal `json:"stakeAmount,omitempty"`
	Skip        bool             `json:"skip,omitempty"`
}

type runStepResponse struct {
	sessionResponse
	Progress []payments.Progress `json:"progress,omitempty"`
}

func (h *SessionHandler) runStep(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	session := h.session(address)
	if session == nil {
		api.NotFound(w, "no checkout session for wallet")
		return
	}

	stepID, err := strconv.Atoi(chi.URLParam(r, "stepID"))
	if err != nil || stepID < 1 || stepID > checkout.StepCount {
		api.BadRequest(w, "invalid step id")
		return
	}

	var req runStepRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	var progress []payments.Progress
	in := checkout.ActionInput{
		Method: payments.Method(req.Method),
		Skip:   req.Skip,
		OnProgress: func(p payments.Progress) {
			progress = append(progress, p)
		},
	}
	if req.StakeAmount != nil {
		in.StakeAmount = *req.StakeAmount
	}

	result, err := session.RunStep(r.Context(), checkout.StepID(stepID), in)
	if err != nil {
		// The step is marked failed and stays retryable; surface the
		// reason with the updated flow state.
		api.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"success": false,
			"error":   map[string]string{"code": "STEP_FAILED", "message": err.Error()},
			"flow":    session.Flow().Snapshot(),
		})
		return
	}

	api.WriteData(w, http.StatusOK, runStepResponse{
		sessionResponse: sessionResponse{
			WalletAddress: address,
			Flow:          session.Flow().Snapshot(),
			Result:        result,
		},
		Progress: progress,
	})
}
