package records

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/domain/models"
)

const EventsCollection = "events"

// Events is the calendar.
type Events struct {
	*Collection[models.Event, *models.Event]
}

func NewEvents(s docstore.Store, gate Gate) *Events {
	return &Events{NewCollection[models.Event](s, EventsCollection, models.ModuleCalendar, gate)}
}

// Upcoming returns events still running at or after from, soonest first.
func (e *Events) Upcoming(ctx context.Context, groupID string, from time.Time) ([]models.Event, error) {
	all, err := e.List(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(all, func(ev models.Event) bool {
		end := ev.EndsAt
		if end.IsZero() {
			end = ev.StartsAt
		}
		return end.Before(from)
	})
	slices.SortStableFunc(out, func(a, b models.Event) int {
		if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
