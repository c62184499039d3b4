// internal/app/features/records/routes.go
package records

import (
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Mount registers the collection routes on a /groups/{groupID} router.
func (h *Handler) Mount(r chi.Router) {
	events := &crud[models.Event, *models.Event]{c: h.Events.Collection, apply: applyEvent, log: h.Log}
	r.Route("/events", func(r chi.Router) {
		r.Get("/upcoming", h.ServeUpcoming)
		events.mount(r, nil)
	})

	finances := &crud[models.FinanceRecord, *models.FinanceRecord]{
		c: h.Finances.Collection, apply: applyFinance, log: h.Log, listFn: h.ServeFinances,
	}
	r.Route("/finances", func(r chi.Router) {
		r.Get("/summary", h.ServeSummary)
		finances.mount(r, nil)
	})

	items := &crud[models.MerchItem, *models.MerchItem]{c: h.Merch.Items, apply: applyItem, log: h.Log}
	r.Route("/merch", func(r chi.Router) {
		items.mount(r, func(r chi.Router) {
			r.Get("/sales", h.ServeSales)
			r.Post("/sales", h.HandleSale)
		})
	})

	tasks := &crud[models.Task, *models.Task]{c: h.Tasks.Collection, apply: applyTask, log: h.Log}
	r.Route("/tasks", func(r chi.Router) {
		tasks.mount(r, func(r chi.Router) {
			r.Post("/complete", h.HandleComplete)
			r.Post("/reopen", h.HandleReopen)
			r.Put("/assignee", h.HandleAssign)
		})
	})

	chats := &crud[models.Chat, *models.Chat]{
		c: h.Chats.Collection, apply: applyChat, log: h.Log, createFn: h.HandleOpenChat,
	}
	r.Route("/chats", func(r chi.Router) {
		chats.mount(r, func(r chi.Router) {
			r.Post("/messages", h.HandlePost)
		})
	})
}
