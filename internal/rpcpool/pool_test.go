package rpcpool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	block  uint64
	err    error
	delay  time.Duration
	closed bool
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.block, f.err
}

func (f *fakeClient) Close() { f.closed = true }

func TestValidateURL(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"https://mainnet.base.org", "wss://x.example/ws", "http://127.0.0.1:8545"} {
		assert.NoError(t, ValidateURL(ok), ok)
	}
	for _, bad := range []string{"", "ftp://x", "https://base-mainnet.g.alchemy.com/v2/YOUR_KEY"} {
		assert.Error(t, ValidateURL(bad), bad)
	}
}

func TestFirst(t *testing.T) {
	t.Parallel()

	t.Run("skips_failures_in_order", func(t *testing.T) {
		clients := map[string]*fakeClient{
			"https://a": {err: errors.New("boom")},
			"https://b": {delay: time.Second},
			"https://c": {block: 42},
			"https://d": {block: 99},
		}
		var dialed []string
		dial := func(ctx context.Context, url string) (*fakeClient, error) {
			dialed = append(dialed, url)
			return clients[url], nil
		}

		conn, err := First(context.Background(), []string{"https://a", "https://b", "https://c", "https://d"}, 20*time.Millisecond, dial)
		require.NoError(t, err)
		assert.Equal(t, "https://c", conn.URL)
		assert.Equal(t, uint64(42), conn.Block)
		assert.Equal(t, []string{"https://a", "https://b", "https://c"}, dialed)
		assert.True(t, clients["https://a"].closed)
		assert.True(t, clients["https://b"].closed)
		assert.False(t, clients["https://c"].closed)
	})

	t.Run("all_fail", func(t *testing.T) {
		dial := func(ctx context.Context, url string) (*fakeClient, error) {
			return nil, errors.New("refused")
		}
		_, err := First(context.Background(), []string{"https://a", "not-a-url"}, time.Second, dial)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoEndpoint)
		assert.Contains(t, err.Error(), "https://a: dial: refused")
		assert.Contains(t, err.Error(), "not-a-url")
	})

	t.Run("empty_list", func(t *testing.T) {
		dial := func(ctx context.Context, url string) (*fakeClient, error) { return &fakeClient{}, nil }
		_, err := First(context.Background(), nil, time.Second, dial)
		assert.ErrorIs(t, err, ErrNoEndpoint)
	})
}

func TestDialJSONRPC(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		if req.Method != "eth_blockNumber" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"nope"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"0x10"}`))
	}))
	defer srv.Close()

	conn, err := Dial(context.Background(), []string{srv.URL}, time.Second)
	require.NoError(t, err)
	defer conn.Client.Close()
	assert.Equal(t, uint64(16), conn.Block)
	assert.Equal(t, srv.URL, conn.URL)
}
