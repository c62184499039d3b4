// internal/domain/models/records.go
package models

import (
	"errors"
	"strings"
	"time"
)

// RecordMeta is embedded in every group-scoped record.
type RecordMeta struct {
	ID        string    `bson:"_id" json:"id"`
	GroupID   string    `bson:"group_id" json:"group_id"`
	CreatedBy string    `bson:"created_by" json:"created_by"`
	Revision  int64     `bson:"_rev" json:"revision"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Meta exposes the embedded metadata to generic collections.
func (m *RecordMeta) Meta() *RecordMeta { return m }

func (m *RecordMeta) validateMeta() error {
	if m.ID == "" {
		return errors.New("missing id")
	}
	if m.GroupID == "" {
		return errors.New("missing group_id")
	}
	return nil
}

// Event is a calendar entry (gig, rehearsal, meeting).
type Event struct {
	RecordMeta `bson:",inline"`
	Title      string    `bson:"title" json:"title"`
	Location   string    `bson:"location,omitempty" json:"location,omitempty"`
	Notes      string    `bson:"notes,omitempty" json:"notes,omitempty"`
	StartsAt   time.Time `bson:"starts_at" json:"starts_at"`
	EndsAt     time.Time `bson:"ends_at" json:"ends_at"`
}

func (e *Event) Validate() error {
	if err := e.validateMeta(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("title is required")
	}
	if e.StartsAt.IsZero() {
		return errors.New("starts_at is required")
	}
	if !e.EndsAt.IsZero() && e.EndsAt.Before(e.StartsAt) {
		return errors.New("ends_at is before starts_at")
	}
	return nil
}

// Finance record types.
const (
	FinanceIncome  = "income"
	FinanceExpense = "expense"
)

// FinanceRecord is a single income or expense entry. Amounts are in
// minor currency units.
type FinanceRecord struct {
	RecordMeta  `bson:",inline"`
	Type        string    `bson:"type" json:"type"`
	Category    string    `bson:"category" json:"category"`
	AmountCents int64     `bson:"amount_cents" json:"amount_cents"`
	Date        time.Time `bson:"date" json:"date"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
}

func (f *FinanceRecord) Validate() error {
	if err := f.validateMeta(); err != nil {
		return err
	}
	if f.Type != FinanceIncome && f.Type != FinanceExpense {
		return errors.New(`type must be "income" or "expense"`)
	}
	if f.AmountCents < 0 {
		return errors.New("amount must not be negative")
	}
	if f.Date.IsZero() {
		return errors.New("date is required")
	}
	return nil
}

// RecordID, RecordDate, RecordAmount, RecordCategory and RecordType make
// FinanceRecord usable with recordfilter.
func (f FinanceRecord) RecordID() string       { return f.ID }
func (f FinanceRecord) RecordDate() time.Time  { return f.Date }
func (f FinanceRecord) RecordAmount() int64    { return f.AmountCents }
func (f FinanceRecord) RecordCategory() string { return f.Category }
func (f FinanceRecord) RecordType() string     { return f.Type }

// MerchItem is a product the band sells.
type MerchItem struct {
	RecordMeta `bson:",inline"`
	Name       string `bson:"name" json:"name"`
	PriceCents int64  `bson:"price_cents" json:"price_cents"`
	Stock      int    `bson:"stock" json:"stock"`
}

func (m *MerchItem) Validate() error {
	if err := m.validateMeta(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("name is required")
	}
	if m.PriceCents < 0 {
		return errors.New("price must not be negative")
	}
	if m.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return nil
}

// MerchSale records units of an item sold.
type MerchSale struct {
	RecordMeta `bson:",inline"`
	ItemID     string    `bson:"item_id" json:"item_id"`
	Quantity   int       `bson:"quantity" json:"quantity"`
	TotalCents int64     `bson:"total_cents" json:"total_cents"`
	SoldAt     time.Time `bson:"sold_at" json:"sold_at"`
}

func (s *MerchSale) Validate() error {
	if err := s.validateMeta(); err != nil {
		return err
	}
	if s.ItemID == "" {
		return errors.New("item_id is required")
	}
	if s.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}

// Task is a to-do item, optionally assigned to a member.
type Task struct {
	RecordMeta  `bson:",inline"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	AssigneeID  string     `bson:"assignee_id,omitempty" json:"assignee_id,omitempty"`
	DueAt       *time.Time `bson:"due_at,omitempty" json:"due_at,omitempty"`
	Done        bool       `bson:"done" json:"done"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

func (t *Task) Validate() error {
	if err := t.validateMeta(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("title is required")
	}
	if t.Done != (t.CompletedAt != nil) {
		return errors.New("done and completed_at disagree")
	}
	return nil
}

// ChatMessage is one message in a chat.
type ChatMessage struct {
	ID       string    `bson:"id" json:"id"`
	AuthorID string    `bson:"author_id" json:"author_id"`
	Body     string    `bson:"body" json:"body"`
	SentAt   time.Time `bson:"sent_at" json:"sent_at"`
}

// Chat is a named conversation inside a group.
type Chat struct {
	RecordMeta `bson:",inline"`
	Name       string        `bson:"name" json:"name"`
	Messages   []ChatMessage `bson:"messages" json:"messages"`
}

func (c *Chat) Validate() error {
	if err := c.validateMeta(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}
