package sandbox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/qcom/banksession/internal/apiclient"
	"github.com/qcom/banksession/internal/metrics"
	"github.com/sirupsen/logrus"
)

const ReplayedHeader = "Idempotent-Replayed"

type cachedResponse struct {
	done        chan struct{}
	status      int
	contentType string
	body        []byte
	storedAt    time.Time
}

// IdempotencyCache answers a repeated mutating request carrying the same
// Idempotency-Key with the first response instead of running it again.
type IdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]*cachedResponse
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewIdempotencyCache(ttl time.Duration, m *metrics.Metrics, logger *logrus.Logger) *IdempotencyCache {
	return &IdempotencyCache{
		entries: make(map[string]*cachedResponse),
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// reserve returns the entry for key and whether the caller owns it.
func (c *IdempotencyCache) reserve(key string) (*cachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !e.storedAt.IsZero() && now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}

	if e, ok := c.entries[key]; ok {
		return e, false
	}
	e := &cachedResponse{done: make(chan struct{})}
	c.entries[key] = e
	return e, true
}

// complete publishes the response to waiters. Server failures are not kept so
// the request may be retried with the same key.
func (c *IdempotencyCache) complete(key string, e *cachedResponse, status int, contentType string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.status = status
	e.contentType = contentType
	e.body = body
	e.storedAt = c.now()
	close(e.done)

	if status >= http.StatusInternalServerError {
		delete(c.entries, key)
	}
}

// scope ties a key to its caller: the authenticated subject on protected
// routes, otherwise a digest of the Authorization header and the body.
func scope(r *http.Request) (string, error) {
	if claims, ok := claimsFrom(r.Context()); ok {
		return "sub:" + claims.Subject, nil
	}

	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		body = data
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	h := sha256.New()
	h.Write([]byte(r.Header.Get("Authorization")))
	h.Write([]byte{0})
	h.Write(body)
	return "anon:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Middleware must run after RequireAuth on protected routes so replays are
// only served to the subject that made the original request.
func (c *IdempotencyCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idemKey := r.Header.Get(apiclient.IdempotencyHeader)
		if idemKey == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		owner, err := scope(r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
			return
		}

		key := r.Method + " " + r.URL.Path + " " + owner + " " + idemKey
		entry, reserved := c.reserve(key)
		if !reserved {
			select {
			case <-entry.done:
			case <-r.Context().Done():
				return
			}
			c.metrics.IdempotentReplay()
			c.logger.WithField("route", r.URL.Path).Info("Replaying idempotent response")
			if entry.contentType != "" {
				w.Header().Set("Content-Type", entry.contentType)
			}
			w.Header().Set(ReplayedHeader, "true")
			w.WriteHeader(entry.status)
			_, _ = w.Write(entry.body)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, keep: true}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		c.complete(key, entry, rec.status, w.Header().Get("Content-Type"), rec.body)
	})
}
