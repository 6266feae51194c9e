package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fanpay/internal/common/api"
	"fanpay/internal/wallet"
)

// WalletHandler exposes the shared wallet connection state.
type WalletHandler struct {
	store   *wallet.Store
	checker wallet.EligibilityChecker
}

// NewWalletHandler creates the wallet connection handler.
func NewWalletHandler(store *wallet.Store, checker wallet.EligibilityChecker) *WalletHandler {
	return &WalletHandler{store: store, checker: checker}
}

// Routes registers the wallet connection routes.
func (h *WalletHandler) Routes(r chi.Router) {
	r.Get("/wallet/state", h.state)
	r.Post("/wallet/connect", h.connect)
	r.Post("/wallet/verify-connection", h.verifyConnection)
	r.Post("/wallet/disconnect", h.disconnect)
}

func (h *WalletHandler) state(w http.ResponseWriter, r *http.Request) {
	api.WriteData(w, http.StatusOK, h.store.State())
}

func (h *WalletHandler) connect(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Connect(r.Context()); err != nil {
		// The failure is already reflected in the state; report both.
		api.WriteJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   map[string]string{"code": "CONNECT_FAILED", "message": err.Error()},
			"state":   h.store.State(),
		})
		return
	}
	api.WriteData(w, http.StatusOK, h.store.State())
}

func (h *WalletHandler) verifyConnection(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.Verify(r.Context(), h.checker)
	if errors.Is(err, wallet.ErrNoWalletConnected) {
		api.BadRequest(w, "no wallet connected")
		return
	}
	if err != nil {
		api.InternalError(w, "verification failed")
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
		"state":   h.store.State(),
	})
}

func (h *WalletHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	h.store.Disconnect()
	api.WriteData(w, http.StatusOK, h.store.State())
}
