package quote_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/pricing"
	"github.com/noah-isme/kasir-api/internal/quote"
)

type totalResponse struct {
	Data quote.TotalResponse `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newHandler() *quote.Handler {
	obs.MustRegisterDomainMetrics("kasir_test", prometheus.NewRegistry())
	return &quote.Handler{
		Calc:     &pricing.Calculator{},
		Validate: validator.New(),
		Currency: "IDR",
	}
}

func postTotal(t *testing.T, h *quote.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/total", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Total(rec, req)
	return rec
}

func TestTotalHandler(t *testing.T) {
	h := newHandler()

	t.Run("computes exact floor total", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":[{"qty":2,"unitPrice":1.239},{"qty":1,"unitPrice":3.999}],"minorUnit":100}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp totalResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, int64(645), resp.Data.TotalMinor)
		require.Equal(t, pricing.ScaleCent, resp.Data.MinorUnit)
		require.Equal(t, 2, resp.Data.Items)
		require.Equal(t, "IDR", resp.Data.Currency)
		_, err := uuid.Parse(resp.Data.QuoteID)
		require.NoError(t, err)
	})

	t.Run("defaults minor unit when omitted", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":[{"qty":3,"unitPrice":1}]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp totalResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, int64(300), resp.Data.TotalMinor)
		require.Equal(t, pricing.DefaultMinorUnit, resp.Data.MinorUnit)
	})

	t.Run("empty items is a zero quote", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":[]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp totalResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, int64(0), resp.Data.TotalMinor)
		require.Equal(t, 0, resp.Data.Items)
	})

	t.Run("unknown body fields are ignored", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":[{"qty":1,"unitPrice":1}],"taxBps":1100}`)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "INVALID_INPUT", resp.Error.Code)
	})

	t.Run("rejects negative quantity", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":[{"qty":-1,"unitPrice":1}]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "INVALID_INPUT", resp.Error.Code)
	})

	t.Run("rejects disallowed minor unit", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":[{"qty":1,"unitPrice":1}],"minorUnit":250}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("attributes overflow to the offending item", func(t *testing.T) {
		rec := postTotal(t, h, `{"items":[{"qty":2,"unitPrice":9007199254740991,"ref":"huge"}],"minorUnit":1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "INVALID_INPUT", resp.Error.Code)
		require.Contains(t, resp.Error.Message, `item "huge"`)
	})
}

func TestTotalHandlerTimeout(t *testing.T) {
	obs.MustRegisterDomainMetrics("kasir_test", prometheus.NewRegistry())
	release := make(chan struct{})
	defer close(release)
	h := &quote.Handler{
		Calc: &pricing.Calculator{
			Opts: pricing.Options{Timeout: 10 * time.Millisecond},
			Compute: func(items []pricing.LineItem, scale pricing.MinorUnit) (pricing.TotalResult, error) {
				<-release
				return pricing.Total(items, scale)
			},
		},
		Currency: "IDR",
	}

	rec := postTotal(t, h, `{"items":[{"qty":1,"unitPrice":1}]}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "TIMEOUT", resp.Error.Code)
}

func TestTotalHandlerCancelled(t *testing.T) {
	obs.MustRegisterDomainMetrics("kasir_test", prometheus.NewRegistry())
	h := &quote.Handler{Calc: &pricing.Calculator{}, Currency: "IDR"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/total", strings.NewReader(`{"items":[{"qty":1,"unitPrice":1}]}`))
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Total(rec, req)

	require.Equal(t, http.StatusRequestTimeout, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "CANCELLED", resp.Error.Code)
}

func TestTotalHandlerKeepsAppErrorTaxonomy(t *testing.T) {
	obs.MustRegisterDomainMetrics("kasir_test", prometheus.NewRegistry())
	h := &quote.Handler{
		Calc: &pricing.Calculator{
			Compute: func(items []pricing.LineItem, scale pricing.MinorUnit) (pricing.TotalResult, error) {
				return pricing.TotalResult{}, fmt.Errorf("price feed: %w",
					common.NewAppError("UPSTREAM_UNAVAILABLE", "price feed unavailable", http.StatusBadGateway, nil))
			},
		},
		Currency: "IDR",
	}

	rec := postTotal(t, h, `{"items":[{"qty":1,"unitPrice":1}]}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "UPSTREAM_UNAVAILABLE", resp.Error.Code)
	require.Equal(t, "price feed unavailable", resp.Error.Message)
}
