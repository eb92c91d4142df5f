// Package http exposes the JSON REST API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"kakebo/internal/cache"
	"kakebo/internal/service"
)

type Server struct {
	http.Server

	categories   *service.CategoryService
	transactions *service.TransactionService

	// Aggregate responses are cheap to recompute but hit on every page
	// load, so they sit behind a small TTL cache. singleflight collapses
	// concurrent recomputations of the same key.
	aggCache *cache.LRUCache[any]
	aggGroup singleflight.Group

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

func NewServer(addr string, categories *service.CategoryService, transactions *service.TransactionService, cacheTTL time.Duration) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		categories:   categories,
		transactions: transactions,
		aggCache:     cache.NewLRUCache[any](16, cacheTTL),
		rateLimiter:  newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.withMiddleware(s.handleCreateCategory))
	mux.HandleFunc("GET /api/categories/{id}", s.withMiddleware(s.handleGetCategory))
	mux.HandleFunc("PUT /api/categories/{id}", s.withMiddleware(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.withMiddleware(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/expenses", s.withMiddleware(s.handleListTransactions))
	mux.HandleFunc("GET /api/expenses/summary", s.withMiddleware(s.handleSummary))
	mux.HandleFunc("GET /api/expenses/patterns", s.withMiddleware(s.handlePatterns))
	mux.HandleFunc("GET /api/expenses/trends", s.withMiddleware(s.handleTrends))
	mux.HandleFunc("GET /api/expenses/lending", s.withMiddleware(s.handleLending))
	mux.HandleFunc("GET /api/expenses/{id}", s.withMiddleware(s.handleGetTransaction))
	mux.HandleFunc("POST /api/expenses", s.withMiddleware(s.handleCreateTransaction))
	mux.HandleFunc("PUT /api/expenses/{id}", s.withMiddleware(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withMiddleware(s.handleDeleteTransaction))

	return s
}

// Shutdown stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// cachedAggregate serves key from the TTL cache, computing at most once
// concurrently on miss.
func (s *Server) cachedAggregate(key string, compute func() (any, error)) (any, error) {
	if v, ok := s.aggCache.Get(key); ok {
		return v, nil
	}
	v, err, _ := s.aggGroup.Do(key, func() (any, error) {
		if v, ok := s.aggCache.Get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		s.aggCache.Set(key, v)
		return v, nil
	})
	return v, err
}

// invalidateAggregates drops all cached aggregate responses. Called after
// every mutation; the datasets are small enough that recomputing is fine.
func (s *Server) invalidateAggregates() {
	s.aggCache.Purge()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
