package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/flagx"
	"github.com/dmitrijs2005/folioguard/internal/timex"
)

// jsonConfig is the on-disk shape of the configuration file. Durations are
// written as Go duration strings ("15m", "720h").
type jsonConfig struct {
	HTTPAddr              string         `json:"http_addr"`
	GRPCAddr              string         `json:"grpc_addr"`
	DatabaseDSN           string         `json:"database_dsn"`
	PublicBaseURL         string         `json:"public_base_url"`
	LogBackend            string         `json:"log_backend"`
	SecureCookies         bool           `json:"secure_cookies"`
	CSRFSecret            string         `json:"csrf_secret"`
	CSRFTokenTTL          timex.Duration `json:"csrf_token_ttl"`
	MaxFailedAttempts     int            `json:"max_failed_attempts"`
	LockoutDuration       timex.Duration `json:"lockout_duration"`
	SessionTTL            timex.Duration `json:"session_ttl"`
	RememberMeTTL         timex.Duration `json:"remember_me_ttl"`
	SessionRefreshRatio   float64        `json:"session_refresh_ratio"`
	VerificationTokenTTL  timex.Duration `json:"verification_token_ttl"`
	PasswordResetTTL      timex.Duration `json:"password_reset_ttl"`
	PasswordResetCooldown timex.Duration `json:"password_reset_cooldown"`
	BcryptCost            int            `json:"bcrypt_cost"`
	RedisAddr             string         `json:"redis_addr"`
	EmailLimit            int            `json:"email_limit"`
	EmailWindow           timex.Duration `json:"email_window"`
	LoginLimit            int            `json:"login_limit"`
	LoginWindow           timex.Duration `json:"login_window"`
	RegisterLimit         int            `json:"register_limit"`
	RegisterWindow        timex.Duration `json:"register_window"`
	SMTPHost              string         `json:"smtp_host"`
	SMTPPort              int            `json:"smtp_port"`
	SMTPUsername          string         `json:"smtp_username"`
	SMTPPassword          string         `json:"smtp_password"`
	MailFrom              string         `json:"mail_from"`
	MailFromName          string         `json:"mail_from_name"`
	MaxConcurrentSessions int            `json:"max_concurrent_sessions"`
	MaxDistinctIPs        int            `json:"max_distinct_ips"`
	MaxDistinctUserAgents int            `json:"max_distinct_user_agents"`
	MaintenanceSchedule   string         `json:"maintenance_schedule"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	S3AccessKey           string         `json:"s3_access_key"`
	S3SecretKey           string         `json:"s3_secret_key"`
	AMQPURL               string         `json:"amqp_url"`
	AMQPExchange          string         `json:"amqp_exchange"`
}

func d(v time.Duration) timex.Duration { return timex.Duration{Duration: v} }

// parseJSON overlays the file named by -c/-config onto cfg. Keys absent from
// the file keep their current values. No flag means no file.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	jc := jsonConfig{
		HTTPAddr: cfg.HTTPAddr, GRPCAddr: cfg.GRPCAddr, DatabaseDSN: cfg.DatabaseDSN,
		PublicBaseURL: cfg.PublicBaseURL, LogBackend: cfg.LogBackend, SecureCookies: cfg.SecureCookies,
		CSRFSecret: cfg.CSRFSecret, CSRFTokenTTL: d(cfg.CSRFTokenTTL),
		MaxFailedAttempts: cfg.MaxFailedAttempts, LockoutDuration: d(cfg.LockoutDuration),
		SessionTTL: d(cfg.SessionTTL), RememberMeTTL: d(cfg.RememberMeTTL), SessionRefreshRatio: cfg.SessionRefreshRatio,
		VerificationTokenTTL: d(cfg.VerificationTokenTTL), PasswordResetTTL: d(cfg.PasswordResetTTL),
		PasswordResetCooldown: d(cfg.PasswordResetCooldown), BcryptCost: cfg.BcryptCost,
		RedisAddr: cfg.RedisAddr, EmailLimit: cfg.EmailLimit, EmailWindow: d(cfg.EmailWindow),
		LoginLimit: cfg.LoginLimit, LoginWindow: d(cfg.LoginWindow),
		RegisterLimit: cfg.RegisterLimit, RegisterWindow: d(cfg.RegisterWindow),
		SMTPHost: cfg.SMTPHost, SMTPPort: cfg.SMTPPort, SMTPUsername: cfg.SMTPUsername, SMTPPassword: cfg.SMTPPassword,
		MailFrom: cfg.MailFrom, MailFromName: cfg.MailFromName,
		MaxConcurrentSessions: cfg.MaxConcurrentSessions, MaxDistinctIPs: cfg.MaxDistinctIPs,
		MaxDistinctUserAgents: cfg.MaxDistinctUserAgents, MaintenanceSchedule: cfg.MaintenanceSchedule,
		S3Bucket: cfg.S3Bucket, S3Region: cfg.S3Region, S3BaseEndpoint: cfg.S3BaseEndpoint,
		S3AccessKey: cfg.S3AccessKey, S3SecretKey: cfg.S3SecretKey,
		AMQPURL: cfg.AMQPURL, AMQPExchange: cfg.AMQPExchange,
	}
	if err := json.Unmarshal(raw, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.HTTPAddr, cfg.GRPCAddr, cfg.DatabaseDSN = jc.HTTPAddr, jc.GRPCAddr, jc.DatabaseDSN
	cfg.PublicBaseURL, cfg.LogBackend, cfg.SecureCookies = jc.PublicBaseURL, jc.LogBackend, jc.SecureCookies
	cfg.CSRFSecret, cfg.CSRFTokenTTL = jc.CSRFSecret, jc.CSRFTokenTTL.Duration
	cfg.MaxFailedAttempts, cfg.LockoutDuration = jc.MaxFailedAttempts, jc.LockoutDuration.Duration
	cfg.SessionTTL, cfg.RememberMeTTL, cfg.SessionRefreshRatio = jc.SessionTTL.Duration, jc.RememberMeTTL.Duration, jc.SessionRefreshRatio
	cfg.VerificationTokenTTL, cfg.PasswordResetTTL = jc.VerificationTokenTTL.Duration, jc.PasswordResetTTL.Duration
	cfg.PasswordResetCooldown, cfg.BcryptCost = jc.PasswordResetCooldown.Duration, jc.BcryptCost
	cfg.RedisAddr, cfg.EmailLimit, cfg.EmailWindow = jc.RedisAddr, jc.EmailLimit, jc.EmailWindow.Duration
	cfg.LoginLimit, cfg.LoginWindow = jc.LoginLimit, jc.LoginWindow.Duration
	cfg.RegisterLimit, cfg.RegisterWindow = jc.RegisterLimit, jc.RegisterWindow.Duration
	cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword = jc.SMTPHost, jc.SMTPPort, jc.SMTPUsername, jc.SMTPPassword
	cfg.MailFrom, cfg.MailFromName = jc.MailFrom, jc.MailFromName
	cfg.MaxConcurrentSessions, cfg.MaxDistinctIPs, cfg.MaxDistinctUserAgents = jc.MaxConcurrentSessions, jc.MaxDistinctIPs, jc.MaxDistinctUserAgents
	cfg.MaintenanceSchedule = jc.MaintenanceSchedule
	cfg.S3Bucket, cfg.S3Region, cfg.S3BaseEndpoint = jc.S3Bucket, jc.S3Region, jc.S3BaseEndpoint
	cfg.S3AccessKey, cfg.S3SecretKey = jc.S3AccessKey, jc.S3SecretKey
	cfg.AMQPURL, cfg.AMQPExchange = jc.AMQPURL, jc.AMQPExchange
	return nil
}
