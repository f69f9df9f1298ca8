package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipcrowd-wallet/config"
	"shipcrowd-wallet/pkg/apperror"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.PlatformConfig{
		BaseURL: srv.URL,
		APIKey:  "pk_test",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
}

func TestCharge_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer pk_test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pm_123", body["payment_method_ref"])
		assert.Equal(t, float64(100000), body["amount"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"charge_id": "ch_456", "status": "captured"})
	})

	chargeID, err := client.Charge(context.Background(), "pm_123", 100000)
	require.NoError(t, err)
	assert.Equal(t, "ch_456", chargeID)
}

func TestCharge_DeclinedReturnsPaymentError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})

	_, err := client.Charge(context.Background(), "pm_123", 100000)
	require.Error(t, err)
	assert.Equal(t, apperror.CodePaymentCapture, apperror.Code(err))
}

func TestCharge_MissingChargeID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "captured"})
	})

	_, err := client.Charge(context.Background(), "pm_123", 100000)
	require.Error(t, err)
	assert.Equal(t, apperror.CodePaymentCapture, apperror.Code(err))
}

func TestUpcomingSettlements_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/v1/settlements/upcoming", r.URL.Path)
		assert.Equal(t, "comp_1", r.URL.Query().Get("company_id"))
		assert.Equal(t, "168", r.URL.Query().Get("within_hours"))

		_ = json.NewEncoder(w).Encode(map[string]int64{"total_amount": 40000})
	})

	total, err := client.UpcomingSettlements(context.Background(), "comp_1", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), total)
}

func TestUpcomingSettlements_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.UpcomingSettlements(context.Background(), "comp_1", 24*time.Hour)
	assert.Error(t, err)
}
