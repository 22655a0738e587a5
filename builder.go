package authgate

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/vireosec/authgate/internal/delivery"
	"github.com/vireosec/authgate/internal/observer"
	"github.com/vireosec/authgate/internal/rate"
	"github.com/vireosec/authgate/internal/stores"
	"github.com/vireosec/authgate/jwt"
	"github.com/vireosec/authgate/oauth"
	"github.com/vireosec/authgate/password"
	"github.com/vireosec/authgate/session"
)

// Builder assembles an [Engine]. Configure it once, call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory UserDirectory
	delivery  CodeDelivery
	providers *oauth.Registry
	sinks     []ObserverSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, challenges and
// throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the identity persistence collaborator.
func (b *Builder) WithDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithDelivery sets the out-of-band code transport. Required only when the
// passwordless surface is used.
func (b *Builder) WithDelivery(sender CodeDelivery) *Builder {
	b.delivery = sender
	return b
}

// WithProviders sets the federated provider registry.
func (b *Builder) WithProviders(registry *oauth.Registry) *Builder {
	b.providers = registry
	return b
}

// WithObserverSinks registers event sinks. Sinks fire in the order given
// here. Setting any sink enables the observer dispatcher.
func (b *Builder) WithObserverSinks(sinks ...ObserverSink) *Builder {
	b.sinks = append(b.sinks, sinks...)
	if len(sinks) > 0 {
		b.config.Observer.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every component and returns the
// engine. The builder cannot be reused afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:         cfg,
		directory:      b.directory,
		jwtManager:     jwtManager,
		passwordHash:   hasher,
		sessionStore:   session.NewStore(b.redis, cfg.Session.RedisPrefix),
		challengeStore: stores.NewChallengeStore(b.redis, ""),
		metrics:        NewMetrics(cfg.Metrics),
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		MaxCodesPerContact: cfg.Passwordless.MaxCodesPerContact,
		ContactWindow:      cfg.Passwordless.ContactWindow,
		ResendCooldown:     cfg.Passwordless.ResendCooldown,
	})

	if b.delivery != nil {
		engine.delivery = delivery.NewDispatcher(b.delivery, delivery.Config{
			BaseBackoff: cfg.Delivery.BaseBackoff,
			MaxRetries:  cfg.Delivery.MaxRetries,
			MaxElapsed:  cfg.Delivery.MaxElapsed,
		})
	}

	if b.providers != nil {
		engine.providers = b.providers
	} else {
		engine.providers = oauth.NewRegistry()
	}

	if cfg.Observer.Enabled {
		sinks := b.sinks
		if len(sinks) == 0 {
			sinks = []ObserverSink{observer.NoOpSink{}}
		}
		engine.observer = observer.NewDispatcher(observer.Config{
			Enabled:    true,
			BufferSize: cfg.Observer.BufferSize,
			DropIfFull: cfg.Observer.DropIfFull,
		}, sinks...)
	}

	b.built = true
	return engine, nil
}
