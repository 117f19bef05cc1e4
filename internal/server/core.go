package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/archive"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/mail"
	"github.com/dmitrijs2005/folioguard/internal/server/metrics"
	"github.com/dmitrijs2005/folioguard/internal/server/ratelimit"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
	"github.com/dmitrijs2005/folioguard/internal/server/services"
	"github.com/redis/go-redis/v9"
)

// Core is the security core with its collaborators, shared by the server
// and the authctl tool.
type Core struct {
	Config  *config.Config
	Logger  logging.Logger
	DB      *sql.DB
	Repos   repomanager.RepositoryManager
	Metrics *metrics.Metrics
	Events  *security.Logger
	Limiter ratelimit.Limiter

	Lockout    *services.LockoutService
	Sessions   *services.SessionService
	TokenFlows *services.TokenFlowService
	Auth       *services.AuthService
	Monitoring *services.MonitoringService

	closers []func() error
}

// NewCore opens the database and wires every service. Optional
// collaborators (Redis, SMTP, S3, AMQP) are used when configured.
func NewCore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Core, error) {
	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	c := &Core{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Repos:   repomanager.NewPostgresRepositoryManager(),
		Metrics: metrics.New(),
		closers: []func() error{db.Close},
	}

	sinks := []security.Sink{c.Metrics}
	if cfg.AMQPURL != "" {
		pub, err := security.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.closers = append(c.closers, pub.Close)
		sinks = append(sinks, pub)
	}
	c.Events = security.NewLogger(db, c.Repos, logger, sinks...)

	c.Limiter = c.newLimiter(ctx)

	renderer, err := mail.NewRenderer()
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mail templates: %w", err)
	}

	c.Lockout = services.NewLockoutService(db, c.Repos, c.Events, logger, cfg)
	c.Sessions = services.NewSessionService(db, c.Repos, c.Events, logger, cfg)
	c.TokenFlows = services.NewTokenFlowService(db, c.Repos, c.Events, logger, c.Limiter, newMailer(cfg, logger), renderer, c.Lockout, cfg)
	c.Auth = services.NewAuthService(db, c.Repos, c.Events, logger, c.Limiter, c.Lockout, c.Sessions, c.TokenFlows, cfg)
	c.Monitoring = services.NewMonitoringService(db, c.Repos, c.Events, logger, c.Sessions, cfg)
	c.Monitoring.AddHealthObserver(c.Metrics)
	c.Monitoring.AddMaintenanceObserver(c.Metrics)

	if cfg.S3Bucket != "" {
		client, err := archive.NewS3Client(ctx, cfg)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Monitoring.WithArchiver(archive.NewExporter(client, cfg.S3Bucket))
	}
	return c, nil
}

// newLimiter prefers Redis. An unreachable Redis is only logged since the
// limiter lets requests through when its store fails.
func (c *Core) newLimiter(ctx context.Context) ratelimit.Limiter {
	rules := ratelimit.RulesFromConfig(c.Config)
	if c.Config.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(rules)
	}
	client := redis.NewClient(&redis.Options{Addr: c.Config.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		c.Logger.Warn(ctx, "redis unreachable, rate limits will not be enforced until it is back", "error", err)
	}
	c.closers = append(c.closers, client.Close)
	return ratelimit.NewRedisLimiter(client, rules)
}

func newMailer(cfg *config.Config, logger logging.Logger) mail.Sender {
	if cfg.SMTPHost == "" {
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	})
}

// Migrate applies the embedded schema migrations.
func (c *Core) Migrate(ctx context.Context) error {
	return c.Repos.RunMigrations(ctx, c.DB)
}

// Close releases connections in reverse order of acquisition.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
