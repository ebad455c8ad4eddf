package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"authchain/internal/audit"
	auditmemory "authchain/internal/audit/store/memory"
	auditpostgres "authchain/internal/audit/store/postgres"
	"authchain/internal/chain/authtype"
	"authchain/internal/chain/chainconfig"
	chainmetrics "authchain/internal/chain/metrics"
	"authchain/internal/chain/models"
	"authchain/internal/chain/service"
	"authchain/internal/chain/store/state"
	"authchain/internal/chain/store/user"
	"authchain/internal/chain/subject"
	"authchain/internal/chain/token"
	"authchain/internal/completion"
	"authchain/internal/completion/store/authcode"
	"authchain/internal/platform/config"
	"authchain/internal/platform/kafka"
	"authchain/internal/platform/postgres"
	"authchain/internal/platform/redis"
	"authchain/internal/platform/tracing"
	"authchain/internal/ratelimit/attempts"
	rlmetrics "authchain/internal/ratelimit/metrics"
	"authchain/internal/ratelimit/store/bucket"
	"authchain/pkg/email"
)

// infra holds the optional external connections. Each is nil when not
// configured.
type infra struct {
	redis *redis.Client
	db    *sql.DB
	kafka *kgo.Client
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	var err error
	if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if in.db, err = postgres.Open(ctx, cfg.Postgres); err != nil {
		in.Close(log)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if in.db != nil {
		if err := postgres.Migrate(ctx, in.db); err != nil {
			in.Close(log)
			return nil, err
		}
	}
	if in.kafka, err = kafka.NewClient(cfg.Kafka); err != nil {
		in.Close(log)
		return nil, err
	}
	if in.kafka != nil {
		if err := kafka.EnsureTopic(ctx, in.kafka, cfg.Kafka); err != nil {
			log.Warn("failed to ensure mail topic", "topic", cfg.Kafka.MailTopic, "error", err)
		}
	}
	return in, nil
}

func (in *infra) Health(ctx context.Context) error {
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if in.kafka != nil {
		if err := kafka.Health(ctx, in.kafka); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

func (in *infra) Close(log *slog.Logger) {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			log.Warn("failed to close postgres", "error", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
}

type purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type app struct {
	service *service.Service
	oauth   *completion.OAuthCompleter
	audit   *audit.Publisher
	purger  purger
}

func buildApp(cfg *config.Config, in *infra, log *slog.Logger) (*app, error) {
	states, purge, err := newStateStore(cfg, in)
	if err != nil {
		return nil, err
	}

	keys, err := token.LoadKeySet(cfg.Token.KeyID, cfg.Token.PrivateKeyFile)
	if err != nil {
		return nil, err
	}
	if cfg.Token.PrivateKeyFile == "" {
		log.Warn("no signing key configured, using an ephemeral key")
	}
	codec, err := token.NewCodec(keys, cfg.Token.Issuer, cfg.Token.Audience, token.WithTTL(cfg.Token.TTL))
	if err != nil {
		return nil, err
	}

	var users subject.UserRepository = user.NewInMemoryUserStore()
	if in.db != nil {
		users = user.NewPostgres(in.db)
	}

	var mailer email.Sender = email.NewLogSender(log)
	if in.kafka != nil {
		mailer = email.NewKafkaSender(in.kafka, cfg.Kafka.MailTopic, log)
	}

	var buckets attempts.BucketStore = bucket.NewInMemoryBucketStore()
	if in.redis != nil {
		buckets = bucket.NewRedis(in.redis.Client)
	}
	limiter := attempts.New(buckets,
		attempts.WithLimit(cfg.OTP.MaxAttempts),
		attempts.WithWindow(cfg.OTP.Window),
		attempts.WithMetrics(rlmetrics.New()),
		attempts.WithLogger(log),
	)

	chain, err := chainconfig.Load(cfg.Chain.File, authtype.NewRegistry(), authtype.Dependencies{
		Subjects:    subject.NewStore(users),
		Mailer:      mailer,
		Links:       codec,
		CallbackURL: cfg.Token.CallbackURL,
		Attempts:    limiter,
		OTP: authtype.OTPSettings{
			Secret: []byte(cfg.OTP.Secret),
			Length: cfg.OTP.Length,
			TTL:    cfg.OTP.TTL,
		},
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	var codes completion.CodeStore = authcode.NewInMemoryStore()
	if in.redis != nil {
		codes = authcode.NewRedisStore(in.redis.Client)
	}
	oauth := completion.NewOAuthCompleter(codes, completion.WithCodeTTL(cfg.Chain.AuthCodeTTL))
	saml := completion.NewSAMLCompleter(keys, cfg.Chain.SAMLContinueURL, cfg.Token.Issuer,
		completion.WithHandoffTTL(cfg.Chain.SAMLHandoffTTL),
	)

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if in.db != nil {
		auditStore = auditpostgres.New(in.db)
	}
	publisher := audit.NewPublisher(auditStore, audit.WithLogger(log), audit.WithAsyncBuffer(1024))

	svc := service.New(states, chain, completion.NewDispatcher(oauth, saml), codec,
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(chainmetrics.New()),
		service.WithTracer(tracing.Tracer(cfg.Tracing)),
		service.WithStateTTL(cfg.Chain.StateTTL),
		service.WithLoginURL(cfg.Chain.LoginURL),
		service.WithDefaultCancelURL(cfg.Chain.DefaultCancelURL),
		service.WithUIServer(models.UIServer{
			AllowedOrigins: cfg.Chain.AllowedOrigins,
			RedirectURIs:   cfg.Chain.RedirectURIs,
		}),
	)
	return &app{service: svc, oauth: oauth, audit: publisher, purger: purge}, nil
}

// newStateStore selects the state backend. Redis expires states natively, so
// only the memory and Postgres stores need the purge loop.
func newStateStore(cfg *config.Config, in *infra) (service.StateStore, purger, error) {
	switch cfg.Server.StateStore {
	case "", "memory":
		s := state.NewInMemoryStore()
		return s, s, nil
	case "redis":
		if in.redis == nil {
			return nil, nil, errors.New("state store redis requires AUTHCHAIN_REDIS_URL")
		}
		return state.NewRedisStore(in.redis.Client), nil, nil
	case "postgres":
		if in.db == nil {
			return nil, nil, errors.New("state store postgres requires AUTHCHAIN_POSTGRES_DSN")
		}
		s := state.NewPostgresStore(in.db)
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown state store %q", cfg.Server.StateStore)
}
