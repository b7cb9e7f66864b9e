package middlewares

// The response cache holds rendered JSON for the read endpoints between
// polls. It is purged whenever the coordinator publishes a new snapshot, so
// entries can never outlive the data they were rendered from.

import (
	"bytes"
	"net/http"

	lru "github.com/hashicorp/golang-lru"
)

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

// ResponseCache is an in-memory LRU cache for GET responses.
type ResponseCache struct {
	cache *lru.Cache
}

// NewResponseCache creates a cache holding up to size responses.
func NewResponseCache(size int) (*ResponseCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{cache: cache}, nil
}

// Purge drops every cached response.
func (c *ResponseCache) Purge() {
	c.cache.Purge()
}

// Middleware serves cached responses for repeated GETs and stores
// successful responses on miss. Non-GET requests and non-200 responses pass
// through uncached.
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if entry, ok := c.cache.Get(key); ok {
			cached := entry.(cachedResponse)
			w.Header().Set("Content-Type", cached.contentType)
			w.WriteHeader(cached.status)
			w.Write(cached.body)
			return
		}

		rec := &bodyRecorder{statusRecorder: newStatusRecorder(w)}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK {
			c.cache.Add(key, cachedResponse{
				status:      rec.status,
				contentType: rec.Header().Get("Content-Type"),
				body:        rec.body.Bytes(),
			})
		}
	})
}

// bodyRecorder additionally captures the response body for caching.
type bodyRecorder struct {
	*statusRecorder
	body bytes.Buffer
}

func (r *bodyRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.statusRecorder.Write(p)
}
