package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfolioapi/internal/metrics"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("connection refused") }

func TestGenerateKey(t *testing.T) {
	a := GenerateKey("portfolio", []string{"AAPL,MSFT", "10y"}, map[string]string{"start_date": "", "benchmark": "SPY"})
	b := GenerateKey("portfolio", []string{"AAPL,MSFT", "10y"}, map[string]string{"benchmark": "SPY", "start_date": ""})
	c := GenerateKey("portfolio", []string{"AAPL,MSFT", "5y"}, nil)

	assert.Equal(t, a, b, "kwargs order must not matter")
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^portfolio:[0-9a-f]{32}$`, a)

	assert.NotEqual(t,
		GenerateKey("portfolio", []string{"AAPL,MSFT", "10y"}, nil),
		GenerateKey("portfolio", []string{"AAPL", "MSFT,10y"}, nil),
		"commas inside args must not shift boundaries")
}

func TestCache_MemoryRoundTrip(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	c := New(store, nil)
	ctx := context.Background()

	type payload struct {
		Stocks []string `json:"stocks"`
		Start  string   `json:"start"`
	}

	var got payload
	assert.Equal(t, Miss, c.GetJSON(ctx, "k", &got))

	assert.Equal(t, Stored, c.SetJSON(ctx, "k", payload{Stocks: []string{"AAPL"}, Start: "2020-01-02"}, time.Minute))
	require.Equal(t, Hit, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, []string{"AAPL"}, got.Stocks)
	assert.Equal(t, "2020-01-02", got.Start)

	assert.Equal(t, Deleted, c.Delete(ctx, "k"))
	_, o := c.Get(ctx, "k")
	assert.Equal(t, Miss, o)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Hour))

	now = now.Add(2 * time.Second)
	_, found, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, 1, store.Flush())
	assert.Equal(t, 1, store.Len())
}

func TestCache_UndecodableIsMiss(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	c := New(store, nil)
	ctx := context.Background()

	require.Equal(t, Stored, c.Set(ctx, "k", []byte("{not json"), 0))

	var v map[string]interface{}
	assert.Equal(t, Miss, c.GetJSON(ctx, "k", &v))
}

func TestCache_StoreErrorsAreUnavailable(t *testing.T) {
	reg := metrics.NewRegistry()
	c := New(brokenStore{}, reg)
	ctx := context.Background()

	_, o := c.Get(ctx, "k")
	assert.Equal(t, Unavailable, o)
	assert.Equal(t, Unavailable, c.Set(ctx, "k", []byte("x"), time.Minute))
	assert.Equal(t, Unavailable, c.Delete(ctx, "k"))

	var v struct{}
	assert.Equal(t, Unavailable, c.GetJSON(ctx, "k", &v))
}

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(NewRedisStore(db), nil)
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("portfolio:abc").SetVal(`{"stocks":["AAPL"]}`)

		var v struct {
			Stocks []string `json:"stocks"`
		}
		assert.Equal(t, Hit, c.GetJSON(ctx, "portfolio:abc", &v))
		assert.Equal(t, []string{"AAPL"}, v.Stocks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("portfolio:nope").RedisNil()

		_, o := c.Get(ctx, "portfolio:nope")
		assert.Equal(t, Miss, o)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get error", func(t *testing.T) {
		mock.ExpectGet("portfolio:abc").SetErr(errors.New("i/o timeout"))

		_, o := c.Get(ctx, "portfolio:abc")
		assert.Equal(t, Unavailable, o)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set with default ttl", func(t *testing.T) {
		mock.ExpectSet("portfolio:abc", []byte(`{"a":1}`), DefaultTTL).SetVal("OK")

		assert.Equal(t, Stored, c.Set(ctx, "portfolio:abc", []byte(`{"a":1}`), 0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectDel("portfolio:abc").SetVal(1)

		assert.Equal(t, Deleted, c.Delete(ctx, "portfolio:abc"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
