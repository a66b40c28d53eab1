package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// replayedResponse is the recorded outcome of a settlement mutation.
type replayedResponse struct {
	StatusCode  int             `json:"statusCode"`
	Body        json.RawMessage `json:"body"`
	ContentType string          `json:"contentType"`
}

// replayCache stores settlement outcomes keyed by idempotency key. A miss
// is (nil, nil).
type replayCache interface {
	Get(ctx context.Context, key string) (*replayedResponse, error)
	Set(ctx context.Context, key string, resp *replayedResponse, ttl time.Duration) error
}

// RedisReplayCache keeps replayed outcomes in Redis so retries still settle
// exactly once across devserver restarts.
type RedisReplayCache struct {
	client *redis.Client
}

// NewRedisReplayCache creates a RedisReplayCache.
func NewRedisReplayCache(client *redis.Client) *RedisReplayCache {
	return &RedisReplayCache{client: client}
}

func (r *RedisReplayCache) Get(ctx context.Context, key string) (*replayedResponse, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp replayedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *RedisReplayCache) Set(ctx context.Context, key string, resp *replayedResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// MemoryReplayCache is the in-process fallback used when Redis is disabled.
type MemoryReplayCache struct {
	mu      sync.Mutex
	entries map[string]memoryReplayEntry
}

type memoryReplayEntry struct {
	resp      replayedResponse
	expiresAt time.Time
}

// NewMemoryReplayCache creates a MemoryReplayCache.
func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{entries: make(map[string]memoryReplayEntry)}
}

func (m *MemoryReplayCache) Get(_ context.Context, key string) (*replayedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	resp := entry.resp
	return &resp, nil
}

func (m *MemoryReplayCache) Set(_ context.Context, key string, resp *replayedResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryReplayEntry{resp: *resp, expiresAt: time.Now().Add(ttl)}
	return nil
}

// capturingWriter duplicates the response body so the outcome can be cached.
type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the recorded response for a POST that
// repeats an Idempotency-Key on the same route. A cancel or payout whose
// response was lost can then be retried and observe the original outcome,
// refund id included, instead of settling a second time.
func IdempotencyMiddleware(cache replayCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := "replay:" + c.FullPath() + ":" + key

		// Cache errors degrade to normal processing.
		if cached, err := cache.Get(ctx, cacheKey); err == nil && cached != nil {
			contentType := cached.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			c.Data(cached.StatusCode, contentType, cached.Body)
			c.Abort()
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		// 5xx outcomes stay uncached so a retry runs the request again.
		if status := c.Writer.Status(); status >= 200 && status < 500 {
			_ = cache.Set(ctx, cacheKey, &replayedResponse{
				StatusCode:  status,
				Body:        w.body.Bytes(),
				ContentType: c.Writer.Header().Get("Content-Type"),
			}, idempotencyTTL)
		}
	}
}
