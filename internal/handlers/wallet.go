package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/handlers/render"
	"github.com/nkiryanov/skillexa/internal/handlers/userctx"
	"github.com/nkiryanov/skillexa/internal/logger"
	"github.com/nkiryanov/skillexa/internal/models"
)

// Upper bound of withdrawals returned at once
const maxWithdrawalsLimit = 1000

type transactionResponse struct {
	Number      string          `json:"number"`
	Type        string          `json:"type"`
	Bucket      string          `json:"bucket"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OrderID     *uuid.UUID      `json:"order_id,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newTransactionResponses(tr []models.WalletTransaction) []transactionResponse {
	res := make([]transactionResponse, 0, len(tr))
	for _, t := range tr {
		res = append(res, transactionResponse{
			Number:      t.Number,
			Type:        t.Type,
			Bucket:      t.Bucket,
			Amount:      t.Amount,
			Description: t.Description,
			OrderID:     t.OrderID,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt,
		})
	}
	return res
}

type balanceResponse struct {
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
}

func handleWallet(walletService walletService, l logger.Logger) http.Handler {
	type response struct {
		balanceResponse
		Transactions []transactionResponse `json:"transactions"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		view, err := walletService.GetWallet(r.Context(), user.ID)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, response{
			balanceResponse: balanceResponse{view.Balance, view.LockedBalance},
			Transactions:    newTransactionResponses(view.Transactions),
		})
	})
}

// Top up is expected to be verified by the gateway integration before it gets here
func handleDeposit(walletService walletService, l logger.Logger) http.Handler {
	type request struct {
		Method               string          `json:"method" validate:"required,max=50"`
		Amount               decimal.Decimal `json:"amount" validate:"money"`
		GatewayTransactionID string          `json:"gateway_transaction_id" validate:"max=255"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		description := "Top up via " + data.Method
		if data.GatewayTransactionID != "" {
			description += " (" + data.GatewayTransactionID + ")"
		}

		wallet, err := walletService.Deposit(r.Context(), user.ID, data.Amount, description)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, balanceResponse{wallet.Balance, wallet.LockedBalance})
	})
}

func handleWithdraw(walletService walletService, l logger.Logger) http.Handler {
	type request struct {
		Amount      decimal.Decimal `json:"amount" validate:"money"`
		Description string          `json:"description" validate:"max=255"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		withdraw, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		if withdraw.Description == "" {
			withdraw.Description = "Payout"
		}

		wallet, err := walletService.Withdraw(r.Context(), user.ID, withdraw.Amount, withdraw.Description, nil)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, balanceResponse{wallet.Balance, wallet.LockedBalance})
	})
}

func handleListWithdrawals(walletService walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxWithdrawalsLimit {
				render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		tr, err := walletService.ListWithdrawals(r.Context(), user.ID, limit)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, newTransactionResponses(tr))
	})
}

// Stored balances next to balances replayed from the ledger
func handleReconcile(walletService walletService, l logger.Logger) http.Handler {
	type response struct {
		balanceResponse
		LedgerBalance decimal.Decimal `json:"ledger_balance"`
		LedgerLocked  decimal.Decimal `json:"ledger_locked"`
		Consistent    bool            `json:"consistent"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		rec, err := walletService.Reconcile(r.Context(), user.ID)
		if err != nil {
			renderError(w, r, err, l)
			return
		}
		if !rec.Consistent() {
			l.Error("Wallet does not match its ledger", "wallet_id", rec.Wallet.ID,
				"balance", rec.Wallet.Balance, "ledger_balance", rec.LedgerBalance,
				"locked_balance", rec.Wallet.LockedBalance, "ledger_locked", rec.LedgerLocked)
		}

		render.JSON(w, response{
			balanceResponse: balanceResponse{rec.Wallet.Balance, rec.Wallet.LockedBalance},
			LedgerBalance:   rec.LedgerBalance,
			LedgerLocked:    rec.LedgerLocked,
			Consistent:      rec.Consistent(),
		})
	})
}
