package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/logging"
	"github.com/bms-fs/order-core/internal/middleware"
	"github.com/bms-fs/order-core/internal/service"
	"go.uber.org/zap"
)

// envelope is the response shape the mobile client expects from every
// endpoint, matching the BMS backend.
type envelope struct {
	IsSuccess bool     `json:"isSuccess"`
	Data      any      `json:"data"`
	Messages  []string `json:"messages"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context(), zap.L()).Error("encode JSON response",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, r, status, envelope{IsSuccess: true, Data: data, Messages: []string{}})
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, envelope{Messages: []string{msg}})
}

// writeError maps err onto a status code. Unexpected errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context(), nil).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, r, status, "internal server error")
		return
	}
	if status == http.StatusBadGateway {
		logging.FromContext(r.Context(), nil).Warn("backend sync failed", zap.Error(err))
	}
	writeJSON(w, r, status, envelope{Messages: apperr.Messages(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrInvalidCoupon):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrIllegalTransition),
		errors.Is(err, apperr.ErrPreconditionFailed),
		errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrRemoteSync):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sessionFrom builds the service session from the authenticated request.
func sessionFrom(r *http.Request) (service.Session, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return service.Session{}, false
	}
	return service.Session{
		UserID: claims.UserID,
		ShopID: claims.ShopID,
		Role:   claims.Role,
		Token:  middleware.TokenFromContext(r.Context()),
	}, true
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parsePage reads limit/offset, defaulting to 20/0 and capping limit at 100.
func parsePage(r *http.Request) (limit, offset int) {
	limit = 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
