// Package view builds the product listing shown to the user from the catalog collection.
package view

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"shelfdesk/internal/domain"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects the ordering of a listing
type SortKey string

const (
	SortDefault   SortKey = ""
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
	SortNameAsc   SortKey = "name-asc"
	SortNameDesc  SortKey = "name-desc"
	SortRating    SortKey = "rating"
	SortStock     SortKey = "stock"
)

var ErrUnknownSortKey = errors.New("unknown sort key")

// SortKeys lists every accepted key in display order
var SortKeys = []SortKey{SortDefault, SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc, SortRating, SortStock}

// ParseSortKey validates user input; "" and "default" select collection order
func ParseSortKey(raw string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(raw)))
	if key == "default" {
		return SortDefault, nil
	}
	for _, k := range SortKeys {
		if k == key {
			return k, nil
		}
	}
	return SortDefault, fmt.Errorf("%w: %q", ErrUnknownSortKey, raw)
}

// Query holds the listing inputs
type Query struct {
	Search   string
	Category string
	Sort     SortKey
}

// Compose filters and orders products for display. It never modifies products.
// Search matches title, brand and description ignoring case; Category must match exactly.
func Compose(products []domain.Product, q Query) []domain.Product {
	// blank input disables the search; otherwise the term matches as typed
	searching := strings.TrimSpace(q.Search) != ""
	term := strings.ToLower(q.Search)

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if searching && !matches(p, term) {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		out = append(out, p.Clone())
	}

	if less := comparator(q.Sort); less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

func matches(p domain.Product, term string) bool {
	return strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Brand), term) ||
		strings.Contains(strings.ToLower(p.Description), term)
}

func comparator(key SortKey) func(a, b domain.Product) bool {
	switch key {
	case SortPriceAsc:
		return func(a, b domain.Product) bool { return a.Price < b.Price }
	case SortPriceDesc:
		return func(a, b domain.Product) bool { return a.Price > b.Price }
	case SortNameAsc:
		c := newCollator()
		return func(a, b domain.Product) bool { return c.CompareString(a.Title, b.Title) < 0 }
	case SortNameDesc:
		c := newCollator()
		return func(a, b domain.Product) bool { return c.CompareString(a.Title, b.Title) > 0 }
	case SortRating:
		return func(a, b domain.Product) bool { return a.Rating > b.Rating }
	case SortStock:
		return func(a, b domain.Product) bool { return a.Stock > b.Stock }
	default:
		return nil
	}
}

// newCollator returns a fresh collator; collate.Collator is not safe for concurrent use
func newCollator() *collate.Collator {
	return collate.New(language.English)
}
