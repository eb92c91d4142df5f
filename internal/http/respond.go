package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"kakebo/internal/core"
	"kakebo/internal/storage"
)

// Wire representations. Amounts cross the boundary as 2-place decimals;
// ids as numbers (numeric strings are accepted on input).
type (
	categoryJSON struct {
		ID        core.ID   `json:"id"`
		Name      string    `json:"name"`
		Color     string    `json:"color"`
		Icon      string    `json:"icon"`
		CreatedAt time.Time `json:"createdAt"`
	}

	transactionJSON struct {
		ID          core.ID   `json:"id"`
		Description string    `json:"description,omitempty"`
		Amount      float64   `json:"amount"`
		CategoryID  core.ID   `json:"categoryId"`
		Date        time.Time `json:"date"`
		Type        string    `json:"type"`
		PersonName  string    `json:"personName,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	errorJSON struct {
		Error string `json:"error"`
	}

	successJSON struct {
		Success bool `json:"success"`
	}
)

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{
		ID:        c.ID,
		Name:      c.Name,
		Color:     c.Color,
		Icon:      c.Icon,
		CreatedAt: c.CreatedAt,
	}
}

func toCategoryListJSON(cats []core.Category) []categoryJSON {
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryJSON(c))
	}
	return out
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Description: t.Description,
		Amount:      t.Amount.Float(),
		CategoryID:  t.CategoryID,
		Date:        t.Date,
		Type:        string(t.Type),
		PersonName:  t.PersonName,
		CreatedAt:   t.CreatedAt,
	}
}

func toTransactionListJSON(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}

// writeServiceError maps domain and storage errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case core.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err, "method", r.Method, "url", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func pathID(r *http.Request) (core.ID, error) {
	return core.ParseID(r.PathValue("id"))
}
