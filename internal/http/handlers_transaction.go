package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"kakebo/internal/core"
	"kakebo/internal/service"
	"kakebo/internal/storage"
)

type transactionPayload struct {
	Description *string      `json:"description"`
	Amount      *json.Number `json:"amount"`
	CategoryID  *core.ID     `json:"categoryId"`
	Date        *string      `json:"date"`
	Type        *string      `json:"type"`
	PersonName  *string      `json:"personName"`
}

func parseAmount(n json.Number) (core.Money, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.MoneyFromDecimal(d)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.TransactionFilter{
		Type:      core.TransactionType(q.Get("type")),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	txs, err := s.transactions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionListJSON(txs))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	tx, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var payload transactionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	if payload.CategoryID == nil {
		writeError(w, http.StatusBadRequest, "categoryId is required")
		return
	}

	var tx core.Transaction
	amount, err := parseAmount(*payload.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	tx.Amount = amount
	tx.CategoryID = *payload.CategoryID
	if payload.Description != nil {
		tx.Description = *payload.Description
	}
	if payload.Type != nil {
		tx.Type = core.TransactionType(*payload.Type)
	}
	if payload.PersonName != nil {
		tx.PersonName = *payload.PersonName
	}
	if payload.Date != nil {
		date, err := parseDate(*payload.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		tx.Date = date
	}

	created, err := s.transactions.Create(r.Context(), tx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateAggregates()
	writeJSON(w, http.StatusCreated, toTransactionJSON(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	var payload transactionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := service.TransactionPatch{
		Description: payload.Description,
		CategoryID:  payload.CategoryID,
		PersonName:  payload.PersonName,
	}
	if payload.Amount != nil {
		amount, err := parseAmount(*payload.Amount)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		patch.Amount = &amount
	}
	if payload.Date != nil {
		date, err := parseDate(*payload.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		patch.Date = &date
	}
	if payload.Type != nil {
		t := core.TransactionType(*payload.Type)
		patch.Type = &t
	}

	updated, err := s.transactions.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, toTransactionJSON(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	deleted, err := s.transactions.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if deleted {
		s.invalidateAggregates()
	}
	writeJSON(w, http.StatusOK, successJSON{Success: deleted})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	v, err := s.cachedAggregate("summary", func() (any, error) {
		return s.transactions.Summary(r.Context())
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	v, err := s.cachedAggregate("patterns", func() (any, error) {
		return s.transactions.Patterns(r.Context())
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeError(w, http.StatusBadRequest, "invalid months")
			return
		}
		months = n
	}
	v, err := s.cachedAggregate("trends:"+strconv.Itoa(months), func() (any, error) {
		return s.transactions.Trends(r.Context(), months)
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleLending(w http.ResponseWriter, r *http.Request) {
	v, err := s.cachedAggregate("lending", func() (any, error) {
		return s.transactions.Lending(r.Context())
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
