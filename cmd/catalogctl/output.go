package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"shelfdesk/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// print writes v in the selected format; table falls back to tabular rows
// for the types the commands return
func (c *cli) print(v any) error {
	switch c.output {
	case formatJSON:
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	switch t := v.(type) {
	case []domain.Product:
		fmt.Fprintln(tw, "ID\tTITLE\tBRAND\tCATEGORY\tPRICE\tSTOCK\tRATING")
		for _, p := range t {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%d\t%.1f\n",
				p.ID, p.Title, p.Brand, p.Category, p.Price, p.Stock, p.Rating)
		}
	case domain.Product:
		rows := [][2]string{
			{"ID", t.ID.String()},
			{"Title", t.Title},
			{"Description", t.Description},
			{"Brand", t.Brand},
			{"Category", t.Category},
			{"Price", strconv.FormatFloat(t.Price, 'f', 2, 64)},
			{"Stock", strconv.Itoa(t.Stock)},
			{"Rating", strconv.FormatFloat(t.Rating, 'f', 1, 64)},
			{"Thumbnail", t.Thumbnail},
			{"Created", formatTime(t.CreatedAt)},
			{"Updated", formatTime(t.UpdatedAt)},
		}
		for _, row := range rows {
			fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
		}
	case []string:
		for _, s := range t {
			fmt.Fprintln(tw, s)
		}
	case domain.Stats:
		fmt.Fprintf(tw, "Products:\t%d\n", t.Total)
		fmt.Fprintf(tw, "Units in stock:\t%d\n", t.TotalStock)
		fmt.Fprintf(tw, "Inventory value:\t%.2f\n", t.TotalValue)
		fmt.Fprintf(tw, "Average price:\t%.2f\n", t.AvgPrice)
		fmt.Fprintf(tw, "Low stock (<%d):\t%d\n", domain.LowStockThreshold, t.LowStock)
	case stateView:
		fmt.Fprintf(tw, "Products:\t%d\n", t.Count)
		fmt.Fprintf(tw, "Last fetch:\t%s\n", formatTime(t.LastFetch))
		if t.Error != "" {
			fmt.Fprintf(tw, "Error:\t%s\n", t.Error)
		}
	default:
		fmt.Fprintln(tw, v)
	}
	return tw.Flush()
}

// stateView is the printable load status
type stateView struct {
	Count     int        `json:"count" yaml:"count"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	LastFetch *time.Time `json:"lastFetch,omitempty" yaml:"lastFetch,omitempty"`
}

func newStateView(state domain.CatalogState) stateView {
	return stateView{
		Count:     len(state.Products),
		Error:     state.Error,
		LastFetch: state.LastFetch,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.RFC1123)
}
