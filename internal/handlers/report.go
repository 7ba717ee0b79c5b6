package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/handlers/render"
	"github.com/nkiryanov/skillexa/internal/handlers/userctx"
	"github.com/nkiryanov/skillexa/internal/logger"
)

const defaultRevenueDays = 30

func handleInstructorEarnings(reportService reportService, l logger.Logger) http.Handler {
	type response struct {
		TotalEarnings    decimal.Decimal `json:"total_earnings"`
		LockedEarnings   decimal.Decimal `json:"locked_earnings"`
		UnlockedEarnings decimal.Decimal `json:"unlocked_earnings"`
		SalesCount       int             `json:"sales_count"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		e, err := reportService.InstructorEarnings(r.Context(), user.ID)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		render.JSON(w, response{
			TotalEarnings:    e.TotalEarnings,
			LockedEarnings:   e.LockedEarnings,
			UnlockedEarnings: e.UnlockedEarnings,
			SalesCount:       e.SalesCount,
		})
	})
}

func handleAdminRevenue(reportService reportService, l logger.Logger) http.Handler {
	type day struct {
		Day     string          `json:"day"`
		Revenue decimal.Decimal `json:"revenue"`
	}
	type month struct {
		Month   string          `json:"month"`
		Revenue decimal.Decimal `json:"revenue"`
	}
	type response struct {
		Since        time.Time       `json:"since"`
		Total        decimal.Decimal `json:"total"`
		Daily        []day           `json:"daily"`
		MonthlySince time.Time       `json:"monthly_since"`
		Monthly      []month         `json:"monthly"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		days := defaultRevenueDays
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				render.ServiceError(w, "Invalid days parameter", http.StatusBadRequest)
				return
			}
			days = n
		}

		report, err := reportService.AdminRevenue(r.Context(), days)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		res := response{
			Since:        report.Since,
			Total:        report.Total,
			Daily:        make([]day, 0, len(report.Daily)),
			MonthlySince: report.MonthlySince,
			Monthly:      make([]month, 0, len(report.Monthly)),
		}
		for _, p := range report.Daily {
			res.Daily = append(res.Daily, day{Day: p.Day.UTC().Format(time.DateOnly), Revenue: p.Revenue})
		}
		for _, p := range report.Monthly {
			res.Monthly = append(res.Monthly, month{Month: p.Day.UTC().Format("2006-01"), Revenue: p.Revenue})
		}
		render.JSON(w, res)
	})
}
