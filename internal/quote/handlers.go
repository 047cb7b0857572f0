// Package quote exposes the pricing calculator over HTTP.
package quote

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/pricing"
)

// Handler wires the pricing calculator to HTTP.
type Handler struct {
	Calc     *pricing.Calculator
	Validate *validator.Validate
	Currency string
}

// TotalRequest is the payload accepted by the total endpoint.
type TotalRequest struct {
	Items     []TotalRequestItem `json:"items" validate:"dive"`
	MinorUnit int64              `json:"minorUnit" validate:"omitempty,oneof=1 10 100 1000 10000"`
}

// TotalRequestItem mirrors pricing.LineItem on the wire.
type TotalRequestItem struct {
	Qty       int64   `json:"qty" validate:"gte=0"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
	Ref       string  `json:"ref" validate:"omitempty,max=128"`
}

// TotalResponse is the success payload of the total endpoint.
type TotalResponse struct {
	QuoteID    string            `json:"quoteId"`
	TotalMinor int64             `json:"totalMinor"`
	MinorUnit  pricing.MinorUnit `json:"minorUnit"`
	Items      int               `json:"items"`
	Currency   string            `json:"currency"`
}

// Total computes a line-item total for the posted payload.
func (h *Handler) Total(w http.ResponseWriter, r *http.Request) {
	if h.Calc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote calculator not configured", nil)
		return
	}

	// Unknown body fields are ignored on purpose: the recognised options are
	// items and minorUnit, nothing else is merged into the calculation.
	var payload TotalRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		obs.QuoteTotal.WithLabelValues("invalid").Inc()
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body", map[string]any{"error": err.Error()})
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			obs.QuoteTotal.WithLabelValues("invalid").Inc()
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request payload", validationDetails(err))
			return
		}
	}

	items := make([]pricing.LineItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, pricing.LineItem{Qty: it.Qty, UnitPrice: it.UnitPrice, Ref: it.Ref})
	}

	calc := *h.Calc
	if payload.MinorUnit != 0 {
		calc.Opts.MinorUnit = pricing.MinorUnit(payload.MinorUnit)
	}

	start := time.Now()
	res, err := calc.Total(r.Context(), items)
	obs.QuoteDuration.Observe(obs.DurationMillis(time.Since(start)))
	obs.QuoteItems.Observe(float64(len(items)))
	if err != nil {
		h.writeError(w, err)
		return
	}

	obs.QuoteTotal.WithLabelValues("ok").Inc()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": TotalResponse{
			QuoteID:    uuid.NewString(),
			TotalMinor: res.TotalMinor,
			MinorUnit:  res.MinorUnit,
			Items:      res.Items,
			Currency:   h.Currency,
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := asAppError(err)
	obs.QuoteTotal.WithLabelValues(resultLabel(appErr.Code)).Inc()
	common.JSONAppError(w, appErr)
}

// asAppError lifts calculator errors into the shared AppError taxonomy.
// Errors already carrying an AppError keep their own code and status.
func asAppError(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, pricing.ErrInvalidInput):
		return common.NewAppError("INVALID_INPUT", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, pricing.ErrTimeout):
		return common.NewAppError("TIMEOUT", "quote calculation timed out", http.StatusGatewayTimeout, err)
	case errors.Is(err, pricing.ErrCancelled):
		return common.NewAppError("CANCELLED", "quote calculation cancelled", http.StatusRequestTimeout, err)
	default:
		return common.NewAppError("INTERNAL", "unable to compute quote", http.StatusInternalServerError, err)
	}
}

func resultLabel(code string) string {
	switch code {
	case "INVALID_INPUT":
		return "invalid"
	case "TIMEOUT":
		return "timeout"
	case "CANCELLED":
		return "cancelled"
	default:
		return "error"
	}
}

func validationDetails(err error) any {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]any{"error": err.Error()}
	}
	fields := make([]map[string]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, map[string]string{
			"field": fe.Namespace(),
			"rule":  fe.Tag(),
		})
	}
	return map[string]any{"fields": fields}
}
