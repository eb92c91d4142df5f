// Package service implements the application operations between the HTTP
// controllers and the repository.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"kakebo/internal/core"
	"kakebo/internal/storage"
)

// Store is the repository port the services depend on.
type Store interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	GetCategory(ctx context.Context, id core.ID) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
	DeleteCategory(ctx context.Context, id core.ID) (bool, error)

	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id core.ID) (core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id core.ID) (bool, error)
}

// Notifier publishes a data-changed notification after a mutation so that
// offline agents know a sync is worthwhile. A nil Notifier disables this.
type Notifier interface {
	PublishSyncRequired(ctx context.Context, entity string, id core.ID) error
}

var defaultColors = []string{
	"#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0", "#9966FF", "#FF9F40", "#E7E9ED",
}

const defaultIcon = "📁"

// CategoryPatch carries a partial update; nil fields are left unchanged.
type CategoryPatch struct {
	Name  *string
	Color *string
	Icon  *string
}

// TransactionPatch carries a partial update; nil fields are left unchanged.
type TransactionPatch struct {
	Description *string
	Amount      *core.Money
	CategoryID  *core.ID
	Date        *time.Time
	Type        *core.TransactionType
	PersonName  *string
}

type CategoryService struct {
	store    Store
	notifier Notifier
}

func NewCategoryService(store Store, notifier Notifier) *CategoryService {
	return &CategoryService{store: store, notifier: notifier}
}

func (s *CategoryService) List(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *CategoryService) Get(ctx context.Context, id core.ID) (core.Category, error) {
	return s.store.GetCategory(ctx, id)
}

func (s *CategoryService) Create(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = defaultColors[rand.Intn(len(defaultColors))]
	}
	if c.Icon == "" {
		c.Icon = defaultIcon
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.notify(ctx, "categories", created.ID)
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, id core.ID, patch CategoryPatch) (core.Category, error) {
	existing, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	if patch.Name != nil {
		existing.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Color != nil {
		existing.Color = *patch.Color
	}
	if patch.Icon != nil {
		existing.Icon = *patch.Icon
	}
	if err := existing.Validate(); err != nil {
		return core.Category{}, err
	}

	updated, err := s.store.UpdateCategory(ctx, existing)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	s.notify(ctx, "categories", id)
	return updated, nil
}

// Delete removes the category. Transactions referencing it are kept with
// a dangling category id.
func (s *CategoryService) Delete(ctx context.Context, id core.ID) (bool, error) {
	deleted, err := s.store.DeleteCategory(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	if deleted {
		s.notify(ctx, "categories", id)
	}
	return deleted, nil
}

func (s *CategoryService) notify(ctx context.Context, entity string, id core.ID) {
	notify(ctx, s.notifier, entity, id)
}

type TransactionService struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewTransactionService(store Store, notifier Notifier) *TransactionService {
	return &TransactionService{store: store, notifier: notifier, now: time.Now}
}

func (s *TransactionService) List(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

func (s *TransactionService) Get(ctx context.Context, id core.ID) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.Type == "" {
		t.Type = core.TypeExpense
	}
	if t.Date.IsZero() {
		t.Date = s.now().UTC()
	}
	t.PersonName = strings.TrimSpace(t.PersonName)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.notify(ctx, "expenses", created.ID)
	return created, nil
}

func (s *TransactionService) Update(ctx context.Context, id core.ID, patch TransactionPatch) (core.Transaction, error) {
	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.Amount != nil {
		existing.Amount = *patch.Amount
	}
	if patch.CategoryID != nil {
		existing.CategoryID = *patch.CategoryID
	}
	if patch.Date != nil {
		existing.Date = *patch.Date
	}
	if patch.Type != nil {
		existing.Type = *patch.Type
	}
	if patch.PersonName != nil {
		existing.PersonName = strings.TrimSpace(*patch.PersonName)
	}
	if err := existing.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.store.UpdateTransaction(ctx, existing)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.notify(ctx, "expenses", id)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, id core.ID) (bool, error) {
	deleted, err := s.store.DeleteTransaction(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if deleted {
		s.notify(ctx, "expenses", id)
	}
	return deleted, nil
}

// Summary computes the headline totals over every stored transaction.
func (s *TransactionService) Summary(ctx context.Context) (core.Summary, error) {
	txs, err := s.store.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return core.Summary{}, fmt.Errorf("load transactions for summary: %w", err)
	}
	return core.Summarize(txs, s.now().UTC()), nil
}

// Patterns groups expense-type transactions by category.
func (s *TransactionService) Patterns(ctx context.Context) ([]core.Pattern, error) {
	txs, err := s.store.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("load transactions for patterns: %w", err)
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories for patterns: %w", err)
	}
	return core.ComputePatterns(txs, cats), nil
}

// Trends returns months month-buckets, oldest first.
func (s *TransactionService) Trends(ctx context.Context, months int) ([]core.Trend, error) {
	txs, err := s.store.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("load transactions for trends: %w", err)
	}
	return core.ComputeTrends(txs, months, s.now().UTC()), nil
}

// Lending summarizes lent/borrowed balances per person.
func (s *TransactionService) Lending(ctx context.Context) (core.Lending, error) {
	txs, err := s.store.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return core.Lending{}, fmt.Errorf("load transactions for lending summary: %w", err)
	}
	return core.ComputeLending(txs), nil
}

func (s *TransactionService) notify(ctx context.Context, entity string, id core.ID) {
	notify(ctx, s.notifier, entity, id)
}

// notify publishes best-effort: a broker outage must never fail the request.
func notify(ctx context.Context, n Notifier, entity string, id core.ID) {
	if n == nil {
		return
	}
	if err := n.PublishSyncRequired(ctx, entity, id); err != nil {
		slog.WarnContext(ctx, "Failed to publish sync notification",
			"entity", entity, "id", id, "error", err)
	}
}
