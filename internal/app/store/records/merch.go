package records

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"go.uber.org/zap"
)

const (
	MerchItemsCollection = "merch_items"
	MerchSalesCollection = "merch_sales"
)

// Merch holds items and the sales recorded against them.
type Merch struct {
	Items *Collection[models.MerchItem, *models.MerchItem]
	Sales *Collection[models.MerchSale, *models.MerchSale]
	log   *zap.Logger
}

func NewMerch(s docstore.Store, gate Gate, logger *zap.Logger) *Merch {
	return &Merch{
		Items: NewCollection[models.MerchItem](s, MerchItemsCollection, models.ModuleMerchandise, gate),
		Sales: NewCollection[models.MerchSale](s, MerchSalesCollection, models.ModuleMerchandise, gate),
		log:   logger,
	}
}

// RecordSale takes quantity units of itemID out of stock and records the
// sale. Stock never goes negative; asking for more than is left is a
// validation error and changes nothing.
func (m *Merch) RecordSale(ctx context.Context, groupID, itemID string, quantity int) (models.MerchSale, models.MerchItem, error) {
	if quantity <= 0 {
		return models.MerchSale{}, models.MerchItem{}, errs.Validation("quantity must be positive")
	}
	caller, err := m.Items.authorize(ctx, groupID)
	if err != nil {
		return models.MerchSale{}, models.MerchItem{}, err
	}

	item, err := m.Items.update(ctx, groupID, itemID, func(it *models.MerchItem) error {
		if it.Stock < quantity {
			return errs.Validation("only %d of %s left", it.Stock, it.Name)
		}
		it.Stock -= quantity
		return nil
	})
	if err != nil {
		return models.MerchSale{}, models.MerchItem{}, err
	}

	sale, err := m.Sales.create(ctx, groupID, caller.UserID, models.MerchSale{
		ItemID:     itemID,
		Quantity:   quantity,
		TotalCents: item.PriceCents * int64(quantity),
		SoldAt:     time.Now().UTC(),
	})
	if err != nil {
		// Put the units back so stock matches recorded sales.
		if _, rerr := m.Items.update(ctx, groupID, itemID, func(it *models.MerchItem) error {
			it.Stock += quantity
			return nil
		}); rerr != nil {
			m.log.Error("merch stock restore failed",
				zap.String("item_id", itemID), zap.Int("quantity", quantity), zap.Error(rerr))
		}
		return models.MerchSale{}, models.MerchItem{}, fmt.Errorf("record sale: %w", err)
	}
	return sale, item, nil
}

// SalesOf lists the sales of one item.
func (m *Merch) SalesOf(ctx context.Context, groupID, itemID string) ([]models.MerchSale, error) {
	all, err := m.Sales.List(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if s.ItemID == itemID {
			out = append(out, s)
		}
	}
	return out, nil
}
