// internal/app/features/records/query.go
package records

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/bandhub/internal/app/system/recordfilter"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/waffle/pantry/query"
)

const dateOnly = "2006-01-02"

// parseTime accepts RFC 3339 or a bare date. A bare date used as an
// upper bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, errs.Validation("%q is not a date", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseCents(name, s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, errs.Validation("%s must be an integer amount in cents", name)
	}
	return &n, nil
}

// parseFinanceQuery reads
//
//	?category=gigs,merch&type=income&from=2024-01-01&to=2024-12-31&min=0&max=5000&sort=-amount
func parseFinanceQuery(r *http.Request) (recordfilter.Filter, recordfilter.Order, error) {
	var f recordfilter.Filter
	for _, c := range strings.Split(query.Get(r, "category"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			f.Categories = append(f.Categories, c)
		}
	}
	f.Type = strings.TrimSpace(query.Get(r, "type"))

	var err error
	if s := query.Get(r, "from"); s != "" {
		if f.From, err = parseTime(s, false); err != nil {
			return f, recordfilter.Order{}, err
		}
	}
	if s := query.Get(r, "to"); s != "" {
		if f.To, err = parseTime(s, true); err != nil {
			return f, recordfilter.Order{}, err
		}
	}
	if f.MinAmount, err = parseCents("min", query.Get(r, "min")); err != nil {
		return f, recordfilter.Order{}, err
	}
	if f.MaxAmount, err = parseCents("max", query.Get(r, "max")); err != nil {
		return f, recordfilter.Order{}, err
	}
	o, err := recordfilter.ParseOrder(query.Get(r, "sort"))
	if err != nil {
		return f, o, errs.Validation("%s", err.Error())
	}
	return f, o, nil
}
