package tiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/safe-zone/internal/observability"
	"github.com/sells-group/safe-zone/internal/resilience"
)

const maxZoom = 22

var (
	// ErrInvalidTile is returned for coordinates outside the tile pyramid.
	ErrInvalidTile = eris.New("tiles: invalid tile coordinates")
	// ErrTileNotFound is returned when the upstream has no such tile.
	ErrTileNotFound = eris.New("tiles: tile not found upstream")
)

// Config configures a Proxy.
type Config struct {
	// UpstreamURL is either a template with {z}, {x}, {y} and optionally
	// {format} placeholders, or a base URL that gets /{z}/{x}/{y}.{format}
	// appended.
	UpstreamURL string
	Format      string // png, jpg, webp
	Timeout     time.Duration
	CacheSize   int
	CacheTTL    time.Duration
	RateLimit   rate.Limit
	UserAgent   string

	Retry   resilience.RetryConfig
	Circuit resilience.CircuitBreakerConfig

	Client  *http.Client
	Clock   clockwork.Clock
	Metrics *observability.Metrics
}

// Proxy fetches tiles from the upstream server with caching, rate limiting,
// retries and a circuit breaker.
type Proxy struct {
	cfg     Config
	client  *http.Client
	cache   *Cache
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewProxy creates a Proxy. UpstreamURL is required.
func NewProxy(cfg Config) (*Proxy, error) {
	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return nil, eris.New("tiles: upstream url is required")
	}
	if cfg.Format == "" {
		cfg.Format = "png"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "safe-zone/1.0"
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("tiles", "fetch")
	}
	if cfg.Circuit.Clock == nil {
		cfg.Circuit.Clock = cfg.Clock
	}
	if cfg.Circuit.ShouldTrip == nil {
		cfg.Circuit.ShouldTrip = func(err error) bool {
			return !errors.Is(err, ErrTileNotFound) && !errors.Is(err, context.Canceled)
		}
	}
	if cfg.Circuit.OnStateChange == nil {
		cfg.Circuit.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("tiles: upstream circuit changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Proxy{
		cfg:     cfg,
		client:  client,
		cache:   NewCache(cfg.CacheSize, cfg.CacheTTL, cfg.Clock),
		limiter: rate.NewLimiter(cfg.RateLimit, int(cfg.RateLimit)+1),
		breaker: resilience.NewCircuitBreaker(cfg.Circuit),
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
	}, nil
}

// Format is the image format tiles are served in.
func (p *Proxy) Format() string { return p.cfg.Format }

// Cache exposes the tile cache for stats.
func (p *Proxy) Cache() *Cache { return p.cache }

// Breaker exposes the upstream circuit breaker for health reporting.
func (p *Proxy) Breaker() *resilience.CircuitBreaker { return p.breaker }

// ContentType is the MIME type of served tiles.
func (p *Proxy) ContentType() string {
	switch p.cfg.Format {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// ValidateKey rejects zoom levels outside 0..22 and x/y outside the grid.
func ValidateKey(z, x, y int) error {
	if z < 0 || z > maxZoom {
		return eris.Wrapf(ErrInvalidTile, "tiles: zoom %d", z)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return eris.Wrapf(ErrInvalidTile, "tiles: %d/%d/%d", z, x, y)
	}
	return nil
}

func (p *Proxy) upstreamURL(k Key) string {
	u := p.cfg.UpstreamURL
	if strings.Contains(u, "{z}") {
		return strings.NewReplacer(
			"{z}", strconv.Itoa(k.Z),
			"{x}", strconv.Itoa(k.X),
			"{y}", strconv.Itoa(k.Y),
			"{format}", k.Format,
		).Replace(u)
	}
	return fmt.Sprintf("%s/%d/%d/%d.%s", strings.TrimRight(u, "/"), k.Z, k.X, k.Y, k.Format)
}

// Fetch returns the tile at z/x/y from cache or upstream.
func (p *Proxy) Fetch(ctx context.Context, z, x, y int) ([]byte, error) {
	if err := ValidateKey(z, x, y); err != nil {
		return nil, err
	}
	k := Key{Z: z, X: x, Y: y, Format: p.cfg.Format}

	if data, ok := p.cache.Get(k); ok {
		p.countCache("hit")
		return data, nil
	}
	p.countCache("miss")

	start := p.clock.Now()
	data, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, p.cfg.Retry, func(ctx context.Context) ([]byte, error) {
			return p.fetchOnce(ctx, k)
		})
	})
	p.observe(start, err)
	if err != nil {
		return nil, err
	}

	p.cache.Put(k, data)
	zap.L().Debug("tiles: fetched", zap.Stringer("tile", k), zap.Int("bytes", len(data)))
	return data, nil
}

func (p *Proxy) fetchOnce(ctx context.Context, k Key) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "tiles: rate limiter wait")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	url := p.upstreamURL(k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "tiles: create request")
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "tiles: get %s", k)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, eris.Wrapf(ErrTileNotFound, "tiles: %s", k)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("tiles: upstream returned %d for %s", resp.StatusCode, k), resp.StatusCode)
	default:
		return nil, eris.Errorf("tiles: upstream returned %d for %s", resp.StatusCode, k)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "tiles: read %s", k)
	}
	return data, nil
}

func (p *Proxy) countCache(result string) {
	if p.metrics != nil {
		p.metrics.TileCache.WithLabelValues(result).Inc()
	}
}

func (p *Proxy) observe(start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.TileFetchDuration.Observe(p.clock.Since(start).Seconds())
	p.metrics.TileFetches.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
