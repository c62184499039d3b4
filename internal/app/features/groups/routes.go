// internal/app/features/groups/routes.go
package groups

import (
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /groups. nested registers additional routes
// under /groups/{groupID} (the record collections).
func Routes(h *Handler, nested ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.ServeMine)
	r.Post("/", h.HandleCreate)
	r.Post("/join", h.HandleJoin)

	r.Route("/{groupID}", func(r chi.Router) {
		r.Get("/", h.ServeGroup)
		r.Get("/pending", h.ServePending)
		r.Delete("/pending", h.HandleCancelJoin)
		r.Post("/approve", h.HandleApprove)
		r.Post("/reject", h.HandleReject)
		r.Post("/leave", h.HandleLeave)
		r.Put("/roles", h.HandleSetRole)
		r.Get("/permissions", h.ServePermissions)
		r.Post("/permissions/{module}", h.HandleGrant)
		r.Put("/permissions/{module}", h.HandleSetRoles)
		r.Delete("/permissions/{module}", h.HandleRevoke)
		r.Get("/audit", h.ServeAudit)
		for _, fn := range nested {
			fn(r)
		}
	})
	return r
}
