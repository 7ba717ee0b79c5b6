package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/handlers/middleware"
	"github.com/nkiryanov/skillexa/internal/logger"
	"github.com/nkiryanov/skillexa/internal/metrics"
	"github.com/nkiryanov/skillexa/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	orderService orderService,
	walletService walletService,
	reportService reportService,
	m *metrics.Metrics,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	mux := http.NewServeMux()

	mux.Handle("POST /api/user/register", handleRegister(authService, logger))
	mux.Handle("POST /api/user/login", handleLogin(authService, logger))
	mux.Handle("GET /api/user/me", withAuth(handleUserMe()))

	mux.Handle("POST /api/orders", withAuth(handleCreateOrder(orderService, logger)))
	mux.Handle("GET /api/orders", withAuth(handleListOrders(orderService, logger)))
	mux.Handle("GET /api/orders/{number}", withAuth(handleGetOrder(orderService, logger)))
	mux.Handle("POST /api/orders/{number}/complete", withAuth(handleCompleteOrder(orderService, logger)))
	mux.Handle("POST /api/orders/{number}/cancel", withAuth(handleCancelOrder(orderService, logger)))
	mux.Handle("POST /api/order-items/{id}/refund", withAuth(handleRefundItem(orderService, logger)))

	mux.Handle("GET /api/wallet", withAuth(handleWallet(walletService, logger)))
	mux.Handle("POST /api/wallet/deposit", withAuth(handleDeposit(walletService, logger)))
	mux.Handle("POST /api/wallet/withdraw", withAuth(handleWithdraw(walletService, logger)))
	mux.Handle("GET /api/wallet/withdrawals", withAuth(handleListWithdrawals(walletService, logger)))
	mux.Handle("GET /api/wallet/reconcile", withAuth(handleReconcile(walletService, logger)))
	mux.Handle("GET /api/instructor/earnings", withAuth(handleInstructorEarnings(reportService, logger)))
	mux.Handle("GET /api/admin/revenue", withAuth(handleAdminRevenue(reportService, logger)))

	mux.Handle("GET /metrics", m.Handler())

	handler := chain(mux,
		middleware.MetricsMiddleware(m),
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found or password is wrong
	Login(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Set access token to response
	SetToken(w http.ResponseWriter, token models.IssuedToken)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type orderService interface {
	CreateOrderFromCart(ctx context.Context, userID uuid.UUID, cart []models.CartItem) (models.Order, error)
	CompleteOrder(ctx context.Context, number string, userID uuid.UUID, conf models.PaymentConfirmation) (models.Order, error)
	CancelOrder(ctx context.Context, number string, userID uuid.UUID) (models.Order, error)
	GetOrder(ctx context.Context, number string, userID uuid.UUID) (models.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	RequestRefund(ctx context.Context, itemID uuid.UUID, userID uuid.UUID) (models.RefundResult, error)
}

type walletService interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (models.WalletView, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (models.Wallet, error)

	// Has to return apperrors.ErrInsufficientFunds if balance is less than amount
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, orderID *uuid.UUID) (models.Wallet, error)
	ListWithdrawals(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (models.Reconciliation, error)
}

type reportService interface {
	InstructorEarnings(ctx context.Context, instructorID uuid.UUID) (models.InstructorEarnings, error)
	AdminRevenue(ctx context.Context, days int) (models.RevenueReport, error)
}
