package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newDrivers(t *testing.T) map[string]KV {
	t.Helper()

	boltKV, err := OpenBolt(filepath.Join(t.TempDir(), "state", "test.db"), "test")
	require.NoError(t, err)
	t.Cleanup(func() { boltKV.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]KV{
		DriverBolt:   boltKV,
		DriverRedis:  NewRedis(client, "test:"),
		DriverMemory: NewMemory(),
	}
}

func TestKV_GetMissingKey(t *testing.T) {
	for name, kv := range newDrivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(context.Background(), "missing")
			require.True(t, errors.Is(err, ErrNotFound), "got %v", err)
		})
	}
}

func TestKV_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, kv := range newDrivers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Put(ctx, "k", []byte("v1")))
			require.NoError(t, kv.Put(ctx, "k", []byte("v2")))

			got, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, "v2", string(got))

			require.NoError(t, kv.Delete(ctx, "k"))
			require.NoError(t, kv.Delete(ctx, "k"))

			_, err = kv.Get(ctx, "k")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBolt_ValuesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	kv, err := OpenBolt(path, "catalog")
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "snapshot", []byte(`{"products":[]}`)))
	require.NoError(t, kv.Close())

	kv, err = OpenBolt(path, "catalog")
	require.NoError(t, err)
	defer kv.Close()

	got, err := kv.Get(ctx, "snapshot")
	require.NoError(t, err)
	require.Equal(t, `{"products":[]}`, string(got))
	require.Equal(t, path, kv.Path())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "etcd"})
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(Options{Driver: DriverRedis})
	require.Error(t, err)
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	_, err := m.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrClosed)
}

// Feature: local-storage, Property 1: Stored values read back unchanged
func TestProperty_StoredValuesReadBackUnchanged(t *testing.T) {
	kv, err := OpenBolt(filepath.Join(t.TempDir(), "prop.db"), "prop")
	if err != nil {
		t.Fatalf("Failed to open bolt: %v", err)
	}
	defer kv.Close()

	properties := gopter.NewProperties(nil)

	properties.Property("put then get returns the same bytes", prop.ForAll(
		func(key string, value string) bool {
			ctx := context.Background()
			if err := kv.Put(ctx, key, []byte(value)); err != nil {
				t.Logf("FAIL: put: %v", err)
				return false
			}
			got, err := kv.Get(ctx, key)
			if err != nil {
				t.Logf("FAIL: get: %v", err)
				return false
			}
			return string(got) == value
		},
		gen.Identifier(),
		gen.AnyString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
