package records

import (
	"context"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/app/system/recordfilter"
	"github.com/dalemusser/bandhub/internal/domain/models"
)

const FinancesCollection = "finance_records"

// Finances is the income and expense ledger.
type Finances struct {
	*Collection[models.FinanceRecord, *models.FinanceRecord]
}

func NewFinances(s docstore.Store, gate Gate) *Finances {
	return &Finances{NewCollection[models.FinanceRecord](s, FinancesCollection, models.ModuleFinances, gate)}
}

// Filtered lists the records of groupID matching f, ordered by o.
func (f *Finances) Filtered(ctx context.Context, groupID string, filter recordfilter.Filter, o recordfilter.Order) ([]models.FinanceRecord, error) {
	all, err := f.List(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return recordfilter.Apply(all, filter, o), nil
}

// Summary totals a filtered set of records.
type Summary struct {
	Count        int              `json:"count"`
	IncomeCents  int64            `json:"income_cents"`
	ExpenseCents int64            `json:"expense_cents"`
	BalanceCents int64            `json:"balance_cents"`
	ByCategory   map[string]int64 `json:"by_category"`
}

// Summarize totals records; expenses count negative in ByCategory.
func Summarize(rs []models.FinanceRecord) Summary {
	s := Summary{Count: len(rs), ByCategory: map[string]int64{}}
	for _, r := range rs {
		switch r.Type {
		case models.FinanceIncome:
			s.IncomeCents += r.AmountCents
			s.ByCategory[r.Category] += r.AmountCents
		case models.FinanceExpense:
			s.ExpenseCents += r.AmountCents
			s.ByCategory[r.Category] -= r.AmountCents
		}
	}
	s.BalanceCents = s.IncomeCents - s.ExpenseCents
	return s
}

// Summary totals the records of groupID that match filter.
func (f *Finances) Summary(ctx context.Context, groupID string, filter recordfilter.Filter) (Summary, error) {
	rs, err := f.Filtered(ctx, groupID, filter, recordfilter.Order{Key: recordfilter.ByDate})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rs), nil
}
