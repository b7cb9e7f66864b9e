package energycharts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `[{"name":{"en":"Solar"},"data":[1,2],"xAxisValues":[1000,2000]}]`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:       baseURL,
		Country:       "de",
		Timeout:       100 * time.Millisecond,
		Retries:       3,
		BackoffFactor: time.Millisecond,
		CacheSize:     8,
	}, testLogger())
	require.NoError(t, err)
	return client
}

func TestNewClient_RejectsUnknownCountry(t *testing.T) {
	_, err := NewClient(DefaultClientConfig("xx"), testLogger())
	assert.Error(t, err)

	for code := range SupportedCountries {
		_, err := NewClient(DefaultClientConfig(code), testLogger())
		assert.NoError(t, err, "country %s", code)
	}
}

func TestClient_FetchSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(validBody))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	snap, err := client.FetchDay(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Series, 1)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_NotFoundIsNeverRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.FetchSpecificWeek(context.Background(), 2030, 12)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_TimeoutsAreRetriedUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			// Outlast the per-attempt deadline of the first two attempts.
			time.Sleep(400 * time.Millisecond)
			return
		}
		w.Write([]byte(validBody))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	start := time.Now()
	snap, err := client.FetchDay(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Series, 1)
	assert.Equal(t, int32(3), attempts.Load())

	// Two backoff sleeps happened: 1ms + 2ms on top of the two timed-out
	// attempts (100ms and 200ms deadlines).
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestClient_TimeoutSurfacesAfterRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.FetchDay(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_MalformedBodyIsRetriedAsDataFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{"error":"not a list"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.FetchDay(context.Background())
	assert.ErrorIs(t, err, ErrData)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_ServerErrorIsConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.FetchDay(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestClient_DayAndWeekHitTheSameEndpoint(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(validBody))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.now = func() time.Time {
		return time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC) // ISO week 24
	}

	_, err := client.FetchDay(context.Background())
	require.NoError(t, err)
	_, err = client.FetchWeek(context.Background())
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.Equal(t, "/de/week_2025_24.json", paths[0])
	assert.Equal(t, paths[0], paths[1])
}

func TestClient_EndpointConstruction(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(validBody))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.now = func() time.Time {
		return time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	}

	ctx := context.Background()
	_, err := client.FetchMonth(ctx)
	require.NoError(t, err)
	_, err = client.FetchWindow(ctx, WindowWeek, 2024, 7)
	require.NoError(t, err)
	_, err = client.FetchWindow(ctx, WindowMonth, 2024, 11)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/de/month_2025_03.json",
		"/de/week_2024_07.json",
		"/de/month_2024_11.json",
	}, paths)
}

func TestClient_PastPeriodsAreCached(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(validBody))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.now = func() time.Time {
		return time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC) // ISO week 24
	}

	ctx := context.Background()

	// A fully past week is fetched once and then served from cache.
	for i := 0; i < 3; i++ {
		_, err := client.FetchSpecificWeek(ctx, 2025, 10)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), attempts.Load())

	// The current week is still in flux and bypasses the cache.
	_, err := client.FetchSpecificWeek(ctx, 2025, 24)
	require.NoError(t, err)
	_, err = client.FetchSpecificWeek(ctx, 2025, 24)
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validBody))
	}))
	client := newTestClient(t, srv.URL)
	assert.True(t, client.Probe(context.Background()))

	srv.Close()
	assert.False(t, client.Probe(context.Background()))
}

func TestClient_CancellationAbandonsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:       srv.URL,
		Country:       "de",
		Timeout:       100 * time.Millisecond,
		Retries:       3,
		BackoffFactor: 10 * time.Second, // would stall without cancellation
		CacheSize:     8,
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = client.FetchDay(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), attempts.Load())
}
