package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"shelfdesk/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// setupEnv points the CLI at a fresh bolt file and a fake remote catalog
func setupEnv(t *testing.T) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products":[
			{"id":1,"title":"Phone","description":"A smart phone","price":100,"stock":5,"category":"tech","rating":4.5},
			{"id":2,"title":"Desk","description":"Oak desk","price":50,"stock":20,"category":"furniture","rating":3.9}
		]}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("STORAGE_DRIVER", "bolt")
	t.Setenv("STORAGE_PATH", filepath.Join(t.TempDir(), "catalog.db"))
	t.Setenv("CATALOG_API_URL", srv.URL)
	t.Setenv("REDIS_HOST", "")
	return &calls
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), &out, args)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "catalogctl %s", strings.Join(args, " "))
	return out
}

func TestFetchPersistsAcrossInvocations(t *testing.T) {
	calls := setupEnv(t)

	mustRun(t, "fetch")
	mustRun(t, "fetch")
	assert.EqualValues(t, 1, calls.Load(), "a stored catalog is not fetched again")

	var products []domain.Product
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "list", "-o", "json", "--sort", "price-asc")), &products))
	require.Len(t, products, 2)
	assert.Equal(t, "Desk", products[0].Title)

	mustRun(t, "fetch", "--force")
	assert.EqualValues(t, 2, calls.Load())
}

func TestAddEditDelete(t *testing.T) {
	setupEnv(t)

	var created domain.Product
	out := mustRun(t, "add", "-o", "json",
		"--title", "Lamp",
		"--description", "A warm desk lamp",
		"--price", "19.99",
		"--stock", "7",
		"--category", "home")
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.ID)

	var edited domain.Product
	out = mustRun(t, "edit", created.ID.String(), "-o", "json", "--stock", "0")
	require.NoError(t, json.Unmarshal([]byte(out), &edited))
	assert.Equal(t, 0, edited.Stock)
	assert.Equal(t, 19.99, edited.Price)
	assert.Equal(t, "Lamp", edited.Title)

	out = mustRun(t, "show", created.ID.String())
	assert.Contains(t, out, "Lamp")
	assert.Contains(t, out, "19.99")

	mustRun(t, "delete", created.ID.String())
	_, err := run(t, "show", created.ID.String())
	assert.ErrorContains(t, err, "product not found")

	mustRun(t, "delete", created.ID.String())
}

func TestAddRejectsInvalidForm(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "add", "--title", "ab", "--description", "short", "--price", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
	assert.Contains(t, err.Error(), "description")
	assert.Contains(t, err.Error(), "price")
	assert.Contains(t, err.Error(), "stock")

	_, err = run(t, "edit", "1", "--title", "ab")
	assert.ErrorContains(t, err, "title")

	_, err = run(t, "edit", "404", "--title", "Lamp")
	assert.ErrorContains(t, err, "product not found")
}

func TestStatsFormats(t *testing.T) {
	setupEnv(t)
	mustRun(t, "fetch")

	var stats domain.Stats
	require.NoError(t, yaml.Unmarshal([]byte(mustRun(t, "stats", "-o", "yaml")), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 25, stats.TotalStock)
	assert.Equal(t, 1500.0, stats.TotalValue)
	assert.Equal(t, 1, stats.LowStock)

	table := mustRun(t, "stats")
	assert.Contains(t, table, "Inventory value:")
	assert.Contains(t, table, "1500.00")

	assert.Equal(t, "furniture\ntech\n", mustRun(t, "categories"))
}

func TestResetAndClear(t *testing.T) {
	setupEnv(t)
	mustRun(t, "fetch")
	mustRun(t, "delete", "1")

	out := mustRun(t, "reset", "-o", "json")
	assert.Contains(t, out, `"count": 2`)

	mustRun(t, "clear")
	assert.Contains(t, mustRun(t, "state"), "never")
}

func TestUnknownOutputFormat(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "list", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")

	_, err = run(t, "list", "--sort", "cheapest")
	assert.ErrorContains(t, err, "unknown sort key")
}
