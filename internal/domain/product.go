package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// LowStockThreshold is the stock level under which a product counts as low stock
const LowStockThreshold = 10

// ProductID is the canonical identifier of a product.
// Remote records carry numeric ids while locally created ones carry uuids; both
// are held as strings so a single comparison matches route params and stored ids.
type ProductID string

// UnmarshalJSON accepts both JSON numbers and JSON strings
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid product id: %w", err)
		}
		*id = ProductID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid product id: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

// String returns the identifier as a plain string
func (id ProductID) String() string {
	return string(id)
}

// Product represents a product in the catalog
type Product struct {
	ID                 ProductID  `json:"id" yaml:"id"`
	Title              string     `json:"title" yaml:"title"`
	Description        string     `json:"description" yaml:"description"`
	Price              float64    `json:"price" yaml:"price"`
	Brand              string     `json:"brand,omitempty" yaml:"brand,omitempty"`
	Category           string     `json:"category,omitempty" yaml:"category,omitempty"`
	Stock              int        `json:"stock" yaml:"stock"`
	Thumbnail          string     `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Rating             float64    `json:"rating" yaml:"rating"`
	DiscountPercentage float64    `json:"discountPercentage,omitempty" yaml:"discountPercentage,omitempty"`
	Tags               []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Images             []string   `json:"images,omitempty" yaml:"images,omitempty"`
	CreatedAt          *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with p
func (p Product) Clone() Product {
	c := p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.Images != nil {
		c.Images = append([]string(nil), p.Images...)
	}
	if p.CreatedAt != nil {
		t := *p.CreatedAt
		c.CreatedAt = &t
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}

// ProductFields carries the user-supplied fields of a create or edit.
// Nil fields are "not supplied" and leave the stored value untouched on edit.
type ProductFields struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *Number  `json:"price,omitempty"`
	Brand       *string  `json:"brand,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Stock       *Number  `json:"stock,omitempty"`
	Thumbnail   *string  `json:"thumbnail,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// Number is a numeric form input that may arrive as a JSON number or a string.
// The raw text is kept so coercion can decide what an unusable value falls back to.
type Number struct {
	raw string
}

// NumberOf wraps a raw textual value
func NumberOf(raw string) *Number {
	return &Number{raw: raw}
}

// NumberFromFloat wraps a float value
func NumberFromFloat(v float64) *Number {
	return &Number{raw: strconv.FormatFloat(v, 'f', -1, 64)}
}

// NumberFromInt wraps an int value
func NumberFromInt(v int) *Number {
	return &Number{raw: strconv.Itoa(v)}
}

// UnmarshalJSON accepts numbers, numeric strings and null
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		n.raw = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n.raw = s
	default:
		n.raw = string(data)
	}
	return nil
}

// MarshalJSON writes the raw text back as a JSON string
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.raw)
}

// Raw returns the original text
func (n Number) Raw() string {
	return n.raw
}

// Float parses the value; ok is false for non-numeric, non-finite or negative input
func (n Number) Float() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(n.raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// Int parses the value truncating toward zero; same ok rules as Float
func (n Number) Int() (int, bool) {
	v, ok := n.Float()
	if !ok || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// Stats aggregates the current collection
type Stats struct {
	Total      int     `json:"total" yaml:"total"`
	TotalStock int     `json:"totalStock" yaml:"totalStock"`
	TotalValue float64 `json:"totalValue" yaml:"totalValue"`
	AvgPrice   float64 `json:"avgPrice" yaml:"avgPrice"`
	LowStock   int     `json:"lowStock" yaml:"lowStock"`
}

// Snapshot is the durably persisted part of the catalog state
type Snapshot struct {
	Products  []Product  `json:"products"`
	LastFetch *time.Time `json:"lastFetch"`
}

// CatalogState is the full in-memory catalog state
type CatalogState struct {
	Products  []Product  `json:"products" yaml:"products"`
	Loading   bool       `json:"loading" yaml:"loading"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	LastFetch *time.Time `json:"lastFetch,omitempty" yaml:"lastFetch,omitempty"`
}
