package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpay/internal/common/api"
	"fanpay/internal/events"
	"fanpay/internal/store"
	"fanpay/internal/verify"
)

const testWallet = "0x742d35Cc6661C0532c26013575AD7c6ba8d87158"

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mem := store.NewSeededMemoryStore()
	gateway := store.NewGateway(mem, events.NewNoopPublisher(logger), logger)

	// An unreachable explorer forces the sandbox fallback path.
	walletSvc := verify.NewWalletService(verify.WalletConfig{
		ExplorerURL: "http://127.0.0.1:1",
		Timeout:     time.Second,
	}, mem, events.NewNoopPublisher(logger), logger)
	kycSvc := verify.NewKYCService(verify.KYCConfig{Delay: time.Millisecond}, mem, logger)
	affordSvc := verify.NewAffordabilityService(mem, logger)

	handler := NewHandler(gateway, walletSvc, kycSvc, affordSvc, logger)
	server := httptest.NewServer(handler.Routes(nil))
	t.Cleanup(server.Close)
	return server, mem
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var envelope api.Response[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeData[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestVerificationEndpointsAlwaysSucceed(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/wallet/verify", map[string]string{"walletAddress": testWallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wallet := decodeData[verify.EligibilityResult](t, resp)
	assert.True(t, wallet.IsEligible)

	resp = postJSON(t, server.URL+"/api/kyc/verify", map[string]string{"walletAddress": testWallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	kyc := decodeData[verify.KYCResult](t, resp)
	assert.Equal(t, "verified", kyc.Status)
	assert.Contains(t, kyc.SessionID, "vs_sandbox_")

	resp = postJSON(t, server.URL+"/api/affordability/check", map[string]any{
		"walletAddress": testWallet,
		"amount":        "400",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	afford := decodeData[verify.AffordabilityResult](t, resp)
	assert.True(t, afford.CanAfford)
}

func TestVerifyWalletMissingAddress(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/wallet/verify", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListAndGetAssets(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/assets")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assets := decodeData[[]*store.Asset](t, resp)
	require.Len(t, assets, 4)
	assert.Equal(t, "PSG", assets[0].Symbol)

	resp, err = http.Get(server.URL + "/api/assets/2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	asset := decodeData[*store.Asset](t, resp)
	assert.Equal(t, "BAR", asset.Symbol)

	resp, err = http.Get(server.URL + "/api/assets/99")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateUserConflict(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/users", map[string]string{"walletAddress": testWallet})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := decodeData[*store.User](t, resp)
	assert.Equal(t, testWallet, user.WalletAddress)
	assert.Equal(t, "pending", user.KYCStatus)

	resp = postJSON(t, server.URL+"/api/users", map[string]string{"walletAddress": testWallet})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPurchaseLifecycle(t *testing.T) {
	server, mem := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/purchases", map[string]any{
		"walletAddress":     testWallet,
		"assetId":           1,
		"totalAmount":       "400",
		"downPaymentAmount": "100",
		"paymentMethod":     "demo_chz",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	detail := decodeData[*store.PurchaseDetail](t, resp)
	assert.Equal(t, store.PurchaseActive, detail.Status)
	assert.True(t, detail.InstallmentAmount.Equal(detail.FinalPaymentAmount))
	require.Len(t, detail.Payments, 1)
	assert.Equal(t, "demo_chz", detail.Payments[0].PaymentType)

	resp, err := http.Get(server.URL + "/api/purchases/wallet/" + testWallet)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeData[[]*store.PurchaseDetail](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, detail.ID, list[0].ID)

	// Staking enables yield on the purchase.
	resp = postJSON(t, server.URL+"/api/staking/stake", map[string]any{
		"purchaseId": detail.ID,
		"amount":     "100",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	staked := decodeData[*store.Purchase](t, resp)
	assert.True(t, staked.YieldEnabled)

	resp, err = http.Get(server.URL + "/api/staking/yield/" + detail.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	yield := decodeData[yieldResponse](t, resp)
	assert.True(t, yield.YieldEnabled)
	assert.True(t, yield.EstimatedAnnualYield.Equal(store.EstimatedAnnualYield(staked.StakedAmount)))

	purchase, err := mem.GetPurchase(context.Background(), detail.ID)
	require.NoError(t, err)
	assert.True(t, purchase.YieldEnabled)
}

func TestUpdatePurchaseValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/purchases", map[string]any{
		"walletAddress":     testWallet,
		"assetId":           1,
		"totalAmount":       "-1",
		"downPaymentAmount": "100",
		"paymentMethod":     "demo_chz",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdatePurchaseStatus(t *testing.T) {
	server, _ := newTestServer(t)

	created := postJSON(t, server.URL+"/api/purchases", map[string]any{
		"walletAddress":     testWallet,
		"assetId":           1,
		"totalAmount":       "400",
		"downPaymentAmount": "100",
		"paymentMethod":     "demo_chz",
	})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	detail := decodeData[*store.PurchaseDetail](t, created)

	req, err := http.NewRequest(http.MethodPatch, fmt.Sprintf("%s/api/purchases/%s", server.URL, detail.ID), bytes.NewReader([]byte(`{"status":"completed"}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	purchase := decodeData[*store.Purchase](t, resp)
	assert.Equal(t, store.PurchaseCompleted, purchase.Status)

	req, err = http.NewRequest(http.MethodPatch, server.URL+"/api/purchases/missing", bytes.NewReader([]byte(`{"status":"completed"}`)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
