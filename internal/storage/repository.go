package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kakebo/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// TransactionFilter narrows and orders ListTransactions results.
type TransactionFilter struct {
	Type      core.TransactionType // empty means all types
	SortBy    string               // date | amount | category
	SortOrder string               // asc | desc
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// Seed rows written by SQLite itself use second precision.
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// --- Categories ---

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, color, icon, created_at FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id core.ID) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, color, icon, created_at FROM categories WHERE id = ?`, int64(id))
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, color, icon, created_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.Color, c.Icon, fmtTime(c.CreatedAt))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("create category id: %w", err)
	}
	c.ID = core.ID(id)

	slog.InfoContext(ctx, "Category created", "id", c.ID, "name", c.Name)
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, color = ?, icon = ? WHERE id = ?`,
		c.Name, c.Color, c.Icon, int64(c.ID))
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	if n == 0 {
		return core.Category{}, ErrNotFound
	}
	return r.GetCategory(ctx, c.ID)
}

// DeleteCategory removes the category only. Transactions that reference
// it keep their category_id and become orphaned.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id core.ID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, int64(id))
	if err != nil {
		return false, fmt.Errorf("delete category %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete category %d: %w", id, err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Category deleted", "id", id)
	}
	return n > 0, nil
}

// --- Transactions ---

var sortColumns = map[string]string{
	"date":     "date",
	"amount":   "amount_cents",
	"category": "category_id",
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "date"
	}
	order := "DESC"
	if f.SortOrder == "asc" {
		order = "ASC"
	}

	query := `SELECT id, description, amount_cents, category_id, date, type, person_name, created_at
		FROM transactions`
	var args []any
	if f.Type != "" {
		query += ` WHERE type = ?`
		args = append(args, string(f.Type))
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id %s`, column, order, order)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id core.ID) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, description, amount_cents, category_id, date, type, person_name, created_at
		FROM transactions WHERE id = ?`, int64(id))
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (description, amount_cents, category_id, date, type, person_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Description, t.Amount.Cents, int64(t.CategoryID), fmtTime(t.Date),
		string(t.Type), t.PersonName, fmtTime(t.CreatedAt))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction id: %w", err)
	}
	t.ID = core.ID(id)

	slog.InfoContext(ctx, "Transaction created",
		"id", t.ID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"category_id", t.CategoryID)
	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET description = ?, amount_cents = ?, category_id = ?,
		date = ?, type = ?, person_name = ? WHERE id = ?`,
		t.Description, t.Amount.Cents, int64(t.CategoryID), fmtTime(t.Date),
		string(t.Type), t.PersonName, int64(t.ID))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	if n == 0 {
		return core.Transaction{}, ErrNotFound
	}
	return r.GetTransaction(ctx, t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id core.ID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, int64(id))
	if err != nil {
		return false, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Transaction deleted", "id", id)
	}
	return n > 0, nil
}

// --- scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c       core.Category
		id      int64
		created string
	)
	if err := row.Scan(&id, &c.Name, &c.Color, &c.Icon, &created); err != nil {
		return core.Category{}, err
	}
	c.ID = core.ID(id)
	c.CreatedAt = parseTime(created)
	return c, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t          core.Transaction
		id, catID  int64
		txType     string
		date       string
		created    string
	)
	if err := row.Scan(&id, &t.Description, &t.Amount.Cents, &catID, &date,
		&txType, &t.PersonName, &created); err != nil {
		return core.Transaction{}, err
	}
	t.ID = core.ID(id)
	t.CategoryID = core.ID(catID)
	t.Type = core.TransactionType(txType)
	t.Date = parseTime(date)
	t.CreatedAt = parseTime(created)
	return t, nil
}
