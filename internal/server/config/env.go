package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "FOLIO_"

// parseEnv loads an optional dotenv file (path from -env, default ".env")
// into the process environment and then applies FOLIO_* variables.
// Variables already present in the environment win over the file.
func parseEnv(cfg *Config, args []string) error {
	path := flagx.EnvFileFlag(args)
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	e := envReader{}
	e.str("HTTP_ADDR", &cfg.HTTPAddr)
	e.str("GRPC_ADDR", &cfg.GRPCAddr)
	e.str("DATABASE_DSN", &cfg.DatabaseDSN)
	e.str("PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	e.str("LOG_BACKEND", &cfg.LogBackend)
	e.boolean("SECURE_COOKIES", &cfg.SecureCookies)
	e.str("CSRF_SECRET", &cfg.CSRFSecret)
	e.duration("CSRF_TOKEN_TTL", &cfg.CSRFTokenTTL)
	e.integer("MAX_FAILED_ATTEMPTS", &cfg.MaxFailedAttempts)
	e.duration("LOCKOUT_DURATION", &cfg.LockoutDuration)
	e.duration("SESSION_TTL", &cfg.SessionTTL)
	e.duration("REMEMBER_ME_TTL", &cfg.RememberMeTTL)
	e.duration("VERIFICATION_TOKEN_TTL", &cfg.VerificationTokenTTL)
	e.duration("PASSWORD_RESET_TTL", &cfg.PasswordResetTTL)
	e.duration("PASSWORD_RESET_COOLDOWN", &cfg.PasswordResetCooldown)
	e.integer("BCRYPT_COST", &cfg.BcryptCost)
	e.str("REDIS_ADDR", &cfg.RedisAddr)
	e.str("SMTP_HOST", &cfg.SMTPHost)
	e.integer("SMTP_PORT", &cfg.SMTPPort)
	e.str("SMTP_USERNAME", &cfg.SMTPUsername)
	e.str("SMTP_PASSWORD", &cfg.SMTPPassword)
	e.str("MAIL_FROM", &cfg.MailFrom)
	e.str("MAINTENANCE_SCHEDULE", &cfg.MaintenanceSchedule)
	e.str("S3_BUCKET", &cfg.S3Bucket)
	e.str("S3_REGION", &cfg.S3Region)
	e.str("S3_BASE_ENDPOINT", &cfg.S3BaseEndpoint)
	e.str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	e.str("S3_SECRET_KEY", &cfg.S3SecretKey)
	e.str("AMQP_URL", &cfg.AMQPURL)
	e.str("AMQP_EXCHANGE", &cfg.AMQPExchange)
	return errors.Join(e.errs...)
}

type envReader struct {
	errs []error
}

func (e *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	return v, ok && v != ""
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = n
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = b
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = d
}
