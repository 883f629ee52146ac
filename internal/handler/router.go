package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vpanarin/vesselbook/internal/middleware"
)

// SetupRouter настраивает маршрутизацию HTTP-запросов.
func (h *Handler) SetupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.GzipMiddleware)
	r.Use(middleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		// Уведомления шлюза подписаны самим шлюзом и не несут cookie.
		r.Post("/webhooks/gateway", h.GatewayWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/vessels", h.ListVessels)
			r.Get("/vessels/{id}", h.GetVessel)
			r.Get("/vessels/{id}/calendar", h.VesselCalendar)
			r.Get("/vessels/{id}/blocked", h.IsBlockedQuery)
			r.Get("/vessels/{id}/availability", h.CanBookQuery)
			r.Get("/vessels/{id}/blocks", h.ListDateBlocks)

			r.Post("/bookings", h.CreateBooking)
			r.Get("/bookings/{id}", h.GetBooking)
			r.Post("/bookings/{id}/approve", h.ApproveBooking)
			r.Post("/bookings/{id}/cancel", h.CancelBooking)
			r.Post("/bookings/{id}/complete", h.CompleteBooking)

			r.Get("/links/{id}/history", h.LinkHistory)
			r.Post("/links/{id}/charges", h.CreateCharge)
			r.Post("/charges/{id}/pay", h.PayCharge)
			r.Post("/charges/{id}/cancel", h.CancelCharge)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/vessels", h.CreateVessel)
				r.Put("/vessels/{id}", h.UpdateVessel)
				r.Post("/users", h.CreateUser)
				r.Put("/users/{id}/status", h.SetUserStatus)
				r.Post("/links", h.CreateLink)
				r.Post("/blocks", h.CreateDateBlock)
				r.Delete("/blocks/{id}", h.DeleteDateBlock)
				r.Post("/weekly-blocks", h.CreateWeeklyBlock)
				r.Get("/weekly-blocks", h.ListWeeklyBlocks)
				r.Post("/weekly-blocks/{id}/toggle", h.ToggleWeeklyBlock)
				r.Get("/collections", h.Collections)
				r.Post("/collections/pay", h.QuickPayment)
				r.Post("/invoices", h.AttachInvoice)
				r.Post("/sweep", h.TriggerSweep)
				r.Get("/audit", h.EntityAudit)
			})
		})
	})

	return r
}
