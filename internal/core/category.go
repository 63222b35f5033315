package core

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Category is the closed set of transaction categories. The zero value is
// not a valid category.
type Category int

const (
	Food Category = iota + 1
	Transportation
	Housing
	Entertainment
	Utilities
	Shopping
	Health
	Education
	Income
)

// categoryNames is the persisted vocabulary. Never store the ordinal.
var categoryNames = map[Category]string{
	Food:           "Food",
	Transportation: "Transportation",
	Housing:        "Housing",
	Entertainment:  "Entertainment",
	Utilities:      "Utilities",
	Shopping:       "Shopping",
	Health:         "Health",
	Education:      "Education",
	Income:         "Income",
}

var categoriesByName = func() map[string]Category {
	m := make(map[string]Category, len(categoryNames))
	for c, name := range categoryNames {
		m[strings.ToLower(name)] = c
	}
	return m
}()

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{Food, Transportation, Housing, Entertainment, Utilities, Shopping, Health, Education, Income}
}

// ExpenseCategories returns the categories valid for expenses.
func ExpenseCategories() []Category {
	all := Categories()
	return all[:len(all)-1]
}

// ParseCategory maps a symbolic name to a Category. Matching ignores case
// and surrounding whitespace; anything else fails with ErrUnknownCategory.
func ParseCategory(name string) (Category, error) {
	c, ok := categoriesByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return c, nil
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer so categories are stored by name.
func (c Category) Value() (driver.Value, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return name, nil
}

// Scan implements sql.Scanner.
func (c *Category) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrUnknownCategory, src)
	}
}
