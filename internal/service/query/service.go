package query

import (
	"context"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/pagination"
	"github.com/mamadbah2/farmledger/internal/repository"
)

// Service serves the history views, newest first.
type Service struct {
	store           repository.Store
	defaultPageSize int
}

// NewService builds the query service; pageSize <= 0 falls back to pagination.DefaultPageSize.
func NewService(store repository.Store, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	return &Service{store: store, defaultPageSize: pageSize}
}

// PageSize resolves the effective page size for a request.
func (s *Service) PageSize(requested int) int {
	if requested <= 0 {
		return s.defaultPageSize
	}
	return requested
}

func (s *Service) resolve(req pagination.Request, size, count int) int {
	req.PageSize = size
	return req.Resolve(count)
}

type indexed[T any] struct {
	pos  int
	item T
}

// newestFirst orders by occurrence, then by insertion position, both descending.
func newestFirst[T any](items []T, at func(T) models.OccurredAt, page, pageSize int) pagination.Page[T] {
	wrapped := make([]indexed[T], len(items))
	for i, it := range items {
		wrapped[i] = indexed[T]{pos: i, item: it}
	}
	sorted := pagination.SortAndPaginate(wrapped, func(a, b indexed[T]) bool {
		ta, tb := at(a.item), at(b.item)
		if tb.Before(ta) {
			return true
		}
		if ta.Before(tb) {
			return false
		}
		return a.pos > b.pos
	}, page, pageSize)

	out := pagination.Page[T]{
		Items:       make([]T, len(sorted.Items)),
		CurrentPage: sorted.CurrentPage,
		TotalPages:  sorted.TotalPages,
		TotalItems:  sorted.TotalItems,
		PageSize:    sorted.PageSize,
	}
	for i, w := range sorted.Items {
		out.Items[i] = w.item
	}
	return out
}

// Events pages the stock events of key.
func (s *Service) Events(ctx context.Context, key models.LedgerKey, req pagination.Request) (pagination.Page[models.StockEvent], error) {
	l, err := s.store.Ledger(ctx, key)
	if err != nil {
		return pagination.Page[models.StockEvent]{}, err
	}
	size := s.PageSize(req.PageSize)
	page := s.resolve(req, size, len(l.Events))
	return newestFirst(l.Events, func(e models.StockEvent) models.OccurredAt { return e.OccurredAt }, page, size), nil
}

// Sales pages the sales of key.
func (s *Service) Sales(ctx context.Context, key models.LedgerKey, req pagination.Request) (pagination.Page[models.Sale], error) {
	sales, err := s.store.Sales(ctx, key)
	if err != nil {
		return pagination.Page[models.Sale]{}, err
	}
	size := s.PageSize(req.PageSize)
	page := s.resolve(req, size, len(sales))
	return newestFirst(sales, func(sale models.Sale) models.OccurredAt { return sale.OccurredAt }, page, size), nil
}

// Metrics pages the snapshots of key by date.
func (s *Service) Metrics(ctx context.Context, key models.LedgerKey, req pagination.Request) (pagination.Page[models.PerformanceMetricSnapshot], error) {
	snaps, err := s.store.Metrics(ctx, key)
	if err != nil {
		return pagination.Page[models.PerformanceMetricSnapshot]{}, err
	}
	size := s.PageSize(req.PageSize)
	return pagination.SortAndPaginate(snaps, func(a, b models.PerformanceMetricSnapshot) bool {
		return a.Date > b.Date
	}, s.resolve(req, size, len(snaps)), size), nil
}
