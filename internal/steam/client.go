package steam

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Settings are the runtime-tunable knobs the access layer polls before
// each identity or pricing operation. They come from the settings store
// so operators can change them without a restart.
type Settings struct {
	APIKey       string
	Currency     string
	RequestDelay time.Duration
	DelayJitter  time.Duration
	UserAgents   []string
}

// SettingsProvider hands out the current settings snapshot.
type SettingsProvider interface {
	Settings() Settings
}

// ClientOptions are deployment-level limits for the request client.
type ClientOptions struct {
	// InventoryQuota requests per InventoryWindow against /inventory/
	// paths. Steam enforces roughly 5 per 30 minutes per IP.
	InventoryQuota  int
	InventoryWindow time.Duration
	// QuotaBuffer is added after the window rolls over before the next
	// inventory request goes out.
	QuotaBuffer time.Duration

	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int

	Timeout time.Duration
}

// DefaultClientOptions mirror Steam's observed limits.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		InventoryQuota:  5,
		InventoryWindow: 30 * time.Minute,
		QuotaBuffer:     5 * time.Second,
		BackoffBase:     time.Second,
		BackoffCap:      60 * time.Second,
		MaxAttempts:     5,
		Timeout:         30 * time.Second,
	}
}

// Client gates every outbound request to Steam: minimum spacing with a
// randomized jitter band, a stricter rolling quota for inventory paths,
// exponential backoff on 429 keyed by path, and user-agent rotation.
// It knows nothing about Steam response semantics.
//
// The window bookkeeping is deliberately unlocked: the client is shared
// process-wide and callers must serialize refresh work against it (the
// tracker does). Overlapping dispatches would corrupt the spacing and
// quota counters.
type Client struct {
	http     *resty.Client
	log      *logrus.Logger
	settings SettingsProvider
	clock    Clock
	rng      *rand.Rand
	opts     ClientOptions

	lastRequest    time.Time
	windowStart    time.Time
	inventoryCount int
	retries        map[string]int
}

func NewClient(settings SettingsProvider, log *logrus.Logger, clock Clock, opts ClientOptions) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)

	return &Client{
		http:     httpClient,
		log:      log,
		settings: settings,
		clock:    clock,
		rng:      rand.New(rand.NewSource(clock.Now().UnixNano())),
		opts:     opts,
	}
}

// Dispatch performs one GET against rawURL after waiting out the
// spacing and quota constraints. A 429 is retried internally with
// exponential backoff; any other response, 2xx or not, is returned for
// the caller to interpret. Transport failures come back as
// *NetworkError without retries.
func (c *Client) Dispatch(ctx context.Context, rawURL string, headers map[string]string) (*resty.Response, error) {
	path := sanitizeURL(rawURL)

	for {
		c.waitTurn(path)

		req := c.http.R().SetContext(ctx)
		for k, v := range headers {
			req.SetHeader(k, v)
		}
		if req.Header.Get("User-Agent") == "" {
			if ua := c.pickUserAgent(); ua != "" {
				req.SetHeader("User-Agent", ua)
			}
		}

		c.log.WithField("url", path).Debug("dispatching steam request")
		c.lastRequest = c.clock.Now()

		resp, err := req.Get(rawURL)
		if err != nil {
			c.log.WithFields(logrus.Fields{"url": path, "error": err}).Warn("steam request failed")
			return nil, &NetworkError{Path: path, Err: err}
		}

		if resp.StatusCode() != 429 {
			if c.retries != nil {
				delete(c.retries, path)
			}
			return resp, nil
		}

		attempt := c.bumpRetry(path)
		if attempt > c.opts.MaxAttempts {
			delete(c.retries, path)
			c.log.WithFields(logrus.Fields{"url": path, "attempts": attempt - 1}).Error("steam rate limit backoff exhausted")
			return nil, &RateLimitError{Path: path, Attempts: attempt - 1}
		}

		delay := c.opts.BackoffBase << uint(attempt-1)
		if delay > c.opts.BackoffCap {
			delay = c.opts.BackoffCap
		}
		c.log.WithFields(logrus.Fields{"url": path, "attempt": attempt, "delay": delay.String()}).Warn("steam throttled, backing off")
		c.clock.Sleep(delay)
	}
}

// waitTurn enforces the randomized minimum spacing and, for inventory
// paths, the rolling per-window quota.
func (c *Client) waitTurn(path string) {
	s := c.settings.Settings()

	spacing := s.RequestDelay
	if s.DelayJitter > 0 {
		spacing += time.Duration(c.rng.Int63n(int64(s.DelayJitter) + 1))
	}
	if !c.lastRequest.IsZero() {
		if elapsed := c.clock.Now().Sub(c.lastRequest); elapsed < spacing {
			c.clock.Sleep(spacing - elapsed)
		}
	}

	if !isInventoryPath(path) {
		return
	}

	now := c.clock.Now()
	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= c.opts.InventoryWindow {
		c.windowStart = now
		c.inventoryCount = 0
	}
	if c.inventoryCount >= c.opts.InventoryQuota {
		until := c.windowStart.Add(c.opts.InventoryWindow).Add(c.opts.QuotaBuffer)
		wait := until.Sub(now)
		if wait > 0 {
			c.log.WithFields(logrus.Fields{"url": path, "wait": wait.String()}).Info("inventory quota exhausted, waiting for window")
			c.clock.Sleep(wait)
		}
		c.windowStart = c.clock.Now()
		c.inventoryCount = 0
	}
	c.inventoryCount++
}

func (c *Client) bumpRetry(path string) int {
	if c.retries == nil {
		c.retries = make(map[string]int)
	}
	c.retries[path]++
	return c.retries[path]
}

func (c *Client) pickUserAgent() string {
	pool := c.settings.Settings().UserAgents
	if len(pool) == 0 {
		return ""
	}
	return pool[c.rng.Intn(len(pool))]
}

// sanitizeURL strips the query string, which may carry the API key,
// leaving scheme+host+path for logs and backoff keys.
func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func isInventoryPath(path string) bool {
	return strings.Contains(path, "/inventory/")
}
