// internal/app/features/login/routes.go
package login

import (
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /auth. It expects the identity middleware to
// run first so /me can read the caller.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.Post("/refresh", h.HandleRefresh)
	r.Post("/logout", h.HandleLogout)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSignedIn)
		r.Get("/me", h.ServeMe)
		r.Patch("/me", h.HandleUpdateMe)
	})
	return r
}
