package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/handlers/render"
	"github.com/nkiryanov/skillexa/internal/handlers/userctx"
	"github.com/nkiryanov/skillexa/internal/logger"
	"github.com/nkiryanov/skillexa/internal/models"
)

type orderItemResponse struct {
	ID                uuid.UUID        `json:"id"`
	CourseID          uuid.UUID        `json:"course_id"`
	CourseTitle       string           `json:"course_title"`
	InstructorID      uuid.UUID        `json:"instructor_id"`
	Price             decimal.Decimal  `json:"price"`
	Discount          decimal.Decimal  `json:"discount"`
	InstructorEarning decimal.Decimal  `json:"instructor_earning"`
	AdminEarning      decimal.Decimal  `json:"admin_earning"`
	IsUnlocked        bool             `json:"is_unlocked"`
	IsRefunded        bool             `json:"is_refunded"`
	RefundAmount      *decimal.Decimal `json:"refund_amount,omitempty"`
	LockedUntil       time.Time        `json:"locked_until"`
}

type paymentResponse struct {
	Number               string          `json:"number"`
	Method               string          `json:"method"`
	Amount               decimal.Decimal `json:"amount"`
	Status               string          `json:"status"`
	GatewayTransactionID *string         `json:"gateway_transaction_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

type orderResponse struct {
	ID        uuid.UUID           `json:"id"`
	Number    string              `json:"number"`
	Status    string              `json:"status"`
	Total     decimal.Decimal     `json:"total"`
	Discount  decimal.Decimal     `json:"discount"`
	Payable   decimal.Decimal     `json:"payable"`
	CreatedAt time.Time           `json:"created_at"`
	Items     []orderItemResponse `json:"items"`
	Payment   *paymentResponse    `json:"payment,omitempty"`
}

func newOrderResponse(o models.Order) orderResponse {
	res := orderResponse{
		ID:        o.ID,
		Number:    o.Number,
		Status:    o.Status,
		Total:     o.Total,
		Discount:  o.Discount,
		Payable:   o.Payable(),
		CreatedAt: o.CreatedAt,
		Items:     make([]orderItemResponse, 0, len(o.Items)),
	}

	for _, i := range o.Items {
		res.Items = append(res.Items, orderItemResponse{
			ID:                i.ID,
			CourseID:          i.CourseID,
			CourseTitle:       i.CourseTitle,
			InstructorID:      i.InstructorID,
			Price:             i.Price,
			Discount:          i.Discount,
			InstructorEarning: i.InstructorEarning,
			AdminEarning:      i.AdminEarning,
			IsUnlocked:        i.IsUnlocked,
			IsRefunded:        i.IsRefunded,
			RefundAmount:      i.RefundAmount,
			LockedUntil:       i.LockedUntil,
		})
	}

	if p := o.Payment; p != nil {
		res.Payment = &paymentResponse{
			Number:               p.Number,
			Method:               p.Method,
			Amount:               p.Amount,
			Status:               p.Status,
			GatewayTransactionID: p.GatewayTransactionID,
			CreatedAt:            p.CreatedAt,
		}
	}

	return res
}

func handleCreateOrder(orderService orderService, l logger.Logger) http.Handler {
	type cartItem struct {
		CourseID     uuid.UUID       `json:"course_id" validate:"required"`
		CourseTitle  string          `json:"course_title" validate:"required,max=255"`
		InstructorID uuid.UUID       `json:"instructor_id" validate:"required"`
		Price        decimal.Decimal `json:"price" validate:"money"`
		Discount     decimal.Decimal `json:"discount" validate:"money"`
	}
	type request struct {
		Items []cartItem `json:"items" validate:"required,min=1,dive"`
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

		cart := make([]models.CartItem, 0, len(data.Items))
		for _, i := range data.Items {
			cart = append(cart, models.CartItem(i))
		}

		order, err := orderService.CreateOrderFromCart(r.Context(), user.ID, cart)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSONWithStatus(w, newOrderResponse(order), http.StatusCreated)
	})
}

func handleListOrders(orderService orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		orders, err := orderService.ListOrders(r.Context(), user.ID)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		res := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			res = append(res, newOrderResponse(o))
		}
		render.JSON(w, res)
	})
}

func handleGetOrder(orderService orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		order, err := orderService.GetOrder(r.Context(), r.PathValue("number"), user.ID)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, newOrderResponse(order))
	})
}

// Payment confirmation is expected to be verified by the gateway integration before it gets here
func handleCompleteOrder(orderService orderService, l logger.Logger) http.Handler {
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

		order, err := orderService.CompleteOrder(r.Context(), r.PathValue("number"), user.ID, models.PaymentConfirmation(data))
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, newOrderResponse(order))
	})
}

func handleCancelOrder(orderService orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		order, err := orderService.CancelOrder(r.Context(), r.PathValue("number"), user.ID)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, newOrderResponse(order))
	})
}

func handleRefundItem(orderService orderService, l logger.Logger) http.Handler {
	type response struct {
		ItemID       uuid.UUID       `json:"item_id"`
		OrderNumber  string          `json:"order_number"`
		OrderStatus  string          `json:"order_status"`
		RefundAmount decimal.Decimal `json:"refund_amount"`
		RefundedAt   time.Time       `json:"refunded_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		itemID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid order item id", http.StatusBadRequest)
			return
		}

		result, err := orderService.RequestRefund(r.Context(), itemID, user.ID)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, response(result))
	})
}
