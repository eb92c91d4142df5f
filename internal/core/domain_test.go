package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validTransaction() Transaction {
	return Transaction{
		Description: "groceries",
		Amount:      Money{Cents: 1250},
		CategoryID:  1,
		Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Type:        TypeExpense,
	}
}

func TestTransactionValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"valid expense", func(tx *Transaction) {}, nil},
		{"negative amount", func(tx *Transaction) { tx.Amount = Money{Cents: -1} }, ErrInvalidAmount},
		{"zero amount ok", func(tx *Transaction) { tx.Amount = Money{} }, nil},
		{"zero category", func(tx *Transaction) { tx.CategoryID = 0 }, ErrInvalidCategoryID},
		{"negative category", func(tx *Transaction) { tx.CategoryID = -3 }, ErrInvalidCategoryID},
		{"unknown type", func(tx *Transaction) { tx.Type = "refund" }, ErrUnknownTransactionType},
		{"lent without person", func(tx *Transaction) { tx.Type = TypeLent }, ErrMissingPersonName},
		{"borrowed without person", func(tx *Transaction) { tx.Type = TypeBorrowed; tx.PersonName = "  " }, ErrMissingPersonName},
		{"lent with person", func(tx *Transaction) { tx.Type = TypeLent; tx.PersonName = "Alice" }, nil},
		{"long description", func(tx *Transaction) { tx.Description = strings.Repeat("x", 201) }, ErrDescriptionTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := validTransaction()
			tc.mutate(&tx)
			err := tx.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.want != nil && !IsValidationError(err) {
				t.Fatalf("%v should be a validation error", err)
			}
		})
	}
}

func TestCategoryValidate(t *testing.T) {
	cases := []struct {
		name string
		cat  Category
		want error
	}{
		{"valid", Category{Name: "Food"}, nil},
		{"empty", Category{Name: ""}, ErrEmptyName},
		{"whitespace", Category{Name: "   "}, ErrEmptyName},
		{"too long", Category{Name: strings.Repeat("a", 101)}, ErrNameTooLong},
	}
	for _, tc := range cases {
		if err := tc.cat.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestIDUnmarshalJSON(t *testing.T) {
	cases := []struct {
		in   string
		out  ID
		ok   bool
	}{
		{`3`, 3, true},
		{`"3"`, 3, true},
		{`"42"`, 42, true},
		{`null`, 0, true},
		{`"abc"`, 0, false},
		{`3.5`, 0, false},
	}
	for _, tc := range cases {
		var id ID
		err := json.Unmarshal([]byte(tc.in), &id)
		if tc.ok {
			if err != nil || id != tc.out {
				t.Fatalf("%s expected %d, got %d (err=%v)", tc.in, tc.out, id, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%s expected error", tc.in)
			}
		}
	}
}

func TestIDMarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		ID ID `json:"id"`
	}{ID: 7})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"id":7}` {
		t.Fatalf("ids must marshal as numbers, got %s", b)
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID(" 12 "); err != nil || id != 12 {
		t.Fatalf("expected 12, got %d (err=%v)", id, err)
	}
	if _, err := ParseID("twelve"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
