package chamaWeb

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/clock"
	"github.com/MrEthical07/chamaWeb/internal/rate"
	"github.com/MrEthical07/chamaWeb/jwt"
	"github.com/MrEthical07/chamaWeb/permission"
	"github.com/MrEthical07/chamaWeb/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. It is single-use: a second Build fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	api        RemoteAPI
	httpClient *http.Client
	clock      clock.Clock
	log        *zap.Logger

	roles     map[string][]string
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables server-side sessions and initiation rate limiting.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAPIClient overrides the platform client built from APIConfig.
func (b *Builder) WithAPIClient(api RemoteAPI) *Builder {
	b.api = api
	return b
}

// WithHTTPClient sets the HTTP client used by the default platform client.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithClock replaces the wall clock. Tests pass a [clock.Fake].
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithRoles replaces the role-to-actions catalog used to gate chama views.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithAuditSink sets where audit events go when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the handshake latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build may return an error when the configuration is invalid, the API base
// URL cannot be parsed or the role catalog is inconsistent.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	clk := b.clock
	if clk == nil {
		clk = clock.Real()
	}

	api := b.api
	if api == nil {
		opts := []apiclient.Option{
			apiclient.WithTimeout(cfg.API.RequestTimeout),
			apiclient.WithLogger(log.Named("apiclient")),
			apiclient.WithBreaker(apiclient.BreakerConfig{
				Name:        "chama-api",
				MaxFailures: cfg.API.Breaker.MaxFailures,
				Interval:    cfg.API.Breaker.Interval,
				Timeout:     cfg.API.Breaker.Timeout,
			}),
		}
		if b.httpClient != nil {
			opts = append(opts, apiclient.WithHTTPClient(b.httpClient))
		}
		client, err := apiclient.New(cfg.API.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		api = client
	}

	catalog, err := permission.NewCatalog(nil, b.roles)
	if err != nil {
		return nil, err
	}

	inspector, err := jwt.NewInspector(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		Key:           []byte(cfg.Token.VerifySecret),
		Leeway:        cfg.Token.Leeway,
		Now:           clk.Now,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:    cfg,
		api:       api,
		clock:     clk,
		log:       log,
		catalog:   catalog,
		inspector: inspector,
		metrics:   NewMetrics(cfg.Metrics),
	}

	if b.redis != nil {
		e.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix)
		if cfg.RateLimit.Enabled {
			e.limiter = rate.New(b.redis, rate.Config{
				Prefix:              cfg.RateLimit.RedisPrefix,
				EnableIPThrottle:    cfg.RateLimit.EnableIPThrottle,
				MaxInitiateAttempts: cfg.RateLimit.MaxInitiateAttempts,
				InitiateWindow:      cfg.RateLimit.InitiateWindow,
			})
		}
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewZapAuditSink(log)
	}
	e.audit = newAuditDispatcher(cfg.Audit, sink)

	b.built = true
	return e, nil
}
