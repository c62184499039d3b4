// internal/app/features/records/crud.go
package records

import (
	"context"
	"net/http"

	recordstore "github.com/dalemusser/bandhub/internal/app/store/records"
	"github.com/dalemusser/bandhub/internal/app/system/respond"
	"github.com/dalemusser/bandhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// crud serves the generic list/create/get/update/delete routes of one
// collection. apply copies the client-editable fields of src onto dst;
// fields it leaves alone (chat messages, task completion) can only be
// changed through the collection's own operations.
type crud[T any, P recordstore.Record[T]] struct {
	c     *recordstore.Collection[T, P]
	apply func(dst P, src *T)
	log   *zap.Logger

	// Optional replacements for the generic list and create.
	listFn   http.HandlerFunc
	createFn http.HandlerFunc
}

func groupID(r *http.Request) string { return chi.URLParam(r, "groupID") }

func recordID(r *http.Request) string { return chi.URLParam(r, "recordID") }

func opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeouts.Medium())
}

func (h *crud[T, P]) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()

	out, err := h.c.List(ctx, groupID(r))
	if err != nil {
		respond.Error(w, h.log, "list "+h.c.Name(), err)
		return
	}
	if out == nil {
		out = []T{}
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *crud[T, P]) create(w http.ResponseWriter, r *http.Request) {
	var in T
	if !respond.Decode(w, r, &in) {
		return
	}
	// Start from a zero record so only editable fields are taken.
	var rec T
	h.apply(P(&rec), &in)

	ctx, cancel := opCtx(r)
	defer cancel()
	out, err := h.c.Create(ctx, groupID(r), rec)
	if err != nil {
		respond.Error(w, h.log, "create "+h.c.Name(), err)
		return
	}
	respond.JSON(w, http.StatusCreated, out)
}

func (h *crud[T, P]) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()

	out, err := h.c.Get(ctx, groupID(r), recordID(r))
	if err != nil {
		respond.Error(w, h.log, "get "+h.c.Name(), err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *crud[T, P]) update(w http.ResponseWriter, r *http.Request) {
	var in T
	if !respond.Decode(w, r, &in) {
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	out, err := h.c.Update(ctx, groupID(r), recordID(r), func(cur P) error {
		h.apply(cur, &in)
		return nil
	})
	if err != nil {
		respond.Error(w, h.log, "update "+h.c.Name(), err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *crud[T, P]) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()

	if err := h.c.Delete(ctx, groupID(r), recordID(r)); err != nil {
		respond.Error(w, h.log, "delete "+h.c.Name(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mount registers the generic routes on r. extra adds routes under
// /{recordID}.
func (h *crud[T, P]) mount(r chi.Router, extra func(r chi.Router)) {
	list, create := h.list, h.create
	if h.listFn != nil {
		list = h.listFn
	}
	if h.createFn != nil {
		create = h.createFn
	}
	r.Get("/", list)
	r.Post("/", create)
	r.Route("/{recordID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.remove)
		if extra != nil {
			extra(r)
		}
	})
}
