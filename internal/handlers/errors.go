package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/handlers/render"
	"github.com/nkiryanov/skillexa/internal/logger"
)

type errorStatus struct {
	err     error
	message string
	code    int
}

// Order matters: specific not found errors go before ErrNotFound
var errorStatuses = []errorStatus{
	{apperrors.ErrInvalidAmount, "Invalid amount", http.StatusUnprocessableEntity},
	{apperrors.ErrEmptyCart, "Cart is empty", http.StatusUnprocessableEntity},
	{apperrors.ErrDuplicateCourse, "Course appears in cart more than once", http.StatusUnprocessableEntity},
	{apperrors.ErrInsufficientFunds, "Insufficient funds", http.StatusPaymentRequired},
	{apperrors.ErrForbidden, "Forbidden", http.StatusForbidden},
	{apperrors.ErrUserNotFound, "User not found", http.StatusNotFound},
	{apperrors.ErrWalletNotFound, "Wallet not found", http.StatusNotFound},
	{apperrors.ErrOrderNotFound, "Order not found", http.StatusNotFound},
	{apperrors.ErrOrderItemNotFound, "Order item not found", http.StatusNotFound},
	{apperrors.ErrNotFound, "Not found", http.StatusNotFound},
	{apperrors.ErrUserAlreadyExists, "User already exists", http.StatusConflict},
	{apperrors.ErrAlreadyRefunded, "Order item already refunded", http.StatusConflict},
	{apperrors.ErrRefundWindowExpired, "Refund window expired", http.StatusConflict},
	{apperrors.ErrStillLocked, "Earnings are still locked", http.StatusConflict},
	{apperrors.ErrInvalidState, "Operation is not allowed in current state", http.StatusConflict},
	{apperrors.ErrGenerationExhausted, "Service temporarily unavailable", http.StatusServiceUnavailable},
}

// Write service error matching err. Unknown errors are logged and rendered as 500
func renderError(w http.ResponseWriter, r *http.Request, err error, l logger.Logger) {
	for _, s := range errorStatuses {
		if errors.Is(err, s.err) {
			render.ServiceError(w, s.message, s.code)
			return
		}
	}

	l.Error("Request failed", "method", r.Method, "uri", r.RequestURI, "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}
