// Package client is the agent's HTTP client for the kakebo API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kakebo/internal/core"
	"kakebo/internal/localstore"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ping reports whether the server is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var dtos []categoryDTO
	if err := c.getJSON(ctx, "/api/categories", &dtos); err != nil {
		return nil, err
	}
	cats := make([]core.Category, 0, len(dtos))
	for _, d := range dtos {
		cats = append(cats, core.Category{
			ID: d.ID, Name: d.Name, Color: d.Color, Icon: d.Icon, CreatedAt: d.CreatedAt,
		})
	}
	return cats, nil
}

func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	var dtos []transactionDTO
	if err := c.getJSON(ctx, "/api/expenses", &dtos); err != nil {
		return nil, err
	}
	txs := make([]core.Transaction, 0, len(dtos))
	for _, d := range dtos {
		amount, err := core.MoneyFromFloat(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", d.ID, err)
		}
		txs = append(txs, core.Transaction{
			ID:          d.ID,
			Description: d.Description,
			Amount:      amount,
			CategoryID:  d.CategoryID,
			Date:        d.Date,
			Type:        core.TransactionType(d.Type),
			PersonName:  d.PersonName,
			CreatedAt:   d.CreatedAt,
		})
	}
	return txs, nil
}

// Execute replays one queued mutation against the API.
func (c *Client) Execute(ctx context.Context, op localstore.PendingOperation) error {
	var (
		method string
		path   string
		body   io.Reader
	)
	switch op.Type {
	case localstore.OpCreate:
		method = http.MethodPost
		path = "/api/" + op.Entity
		body = bytes.NewReader(op.Data)
	case localstore.OpUpdate:
		method = http.MethodPut
		path = fmt.Sprintf("/api/%s/%s", op.Entity, op.EntityID)
		body = bytes.NewReader(op.Data)
	case localstore.OpDelete:
		method = http.MethodDelete
		path = fmt.Sprintf("/api/%s/%s", op.Entity, op.EntityID)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// drain reads the body to completion so the connection can be reused.
func drain(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 4096))
	body.Close()
}

type (
	categoryDTO struct {
		ID        core.ID   `json:"id"`
		Name      string    `json:"name"`
		Color     string    `json:"color"`
		Icon      string    `json:"icon"`
		CreatedAt time.Time `json:"createdAt"`
	}

	transactionDTO struct {
		ID          core.ID   `json:"id"`
		Description string    `json:"description"`
		Amount      float64   `json:"amount"`
		CategoryID  core.ID   `json:"categoryId"`
		Date        time.Time `json:"date"`
		Type        string    `json:"type"`
		PersonName  string    `json:"personName"`
		CreatedAt   time.Time `json:"createdAt"`
	}
)
