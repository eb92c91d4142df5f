package core

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	TypeExpense  TransactionType = "expense"
	TypeLent     TransactionType = "lent"
	TypeBorrowed TransactionType = "borrowed"
)

type (
	TransactionType string

	// ID is the canonical identifier for categories and transactions.
	// The JSON boundary accepts both numbers and numeric strings and
	// converts once; everything past the boundary works with int64.
	ID int64

	Category struct {
		ID        ID
		Name      string
		Color     string
		Icon      string
		CreatedAt time.Time
	}

	Transaction struct {
		ID          ID
		Description string
		Amount      Money
		CategoryID  ID
		Date        time.Time
		Type        TransactionType
		PersonName  string
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCategoryID      = errors.New("invalid category id")
	ErrMissingPersonName      = errors.New("person name is required for lent/borrowed transactions")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	ErrEmptyName              = errors.New("empty name")
	ErrNameTooLong            = errors.New("name too long (max 100 characters)")
	ErrDescriptionTooLong     = errors.New("description too long (max 200 characters)")
)

// IsValidationError reports whether err is one of the input validation
// sentinels, i.e. the caller sent bad data rather than the system failing.
func IsValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidAmount, ErrInvalidCategoryID, ErrMissingPersonName,
		ErrUnknownTransactionType, ErrEmptyName, ErrNameTooLong,
		ErrDescriptionTooLong,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// ParseID converts a boundary identifier (a numeric string) to the
// canonical int64 form.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrInvalidCategoryID
	}
	return ID(n), nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON accepts both 3 and "3" so clients that serialize ids as
// strings keep working; the value is normalized here and nowhere else.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ErrInvalidCategoryID
	}
	*id = ID(n)
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(id))
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeExpense, TypeLent, TypeBorrowed:
		return true
	}
	return false
}

// IsLending reports whether the type involves another person.
func (t TransactionType) IsLending() bool {
	return t == TypeLent || t == TypeBorrowed
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return ErrNameTooLong
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.CategoryID <= 0 {
		return ErrInvalidCategoryID
	}
	if !t.Type.Valid() {
		return ErrUnknownTransactionType
	}
	if t.Type.IsLending() && strings.TrimSpace(t.PersonName) == "" {
		return ErrMissingPersonName
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}
