package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/folioguard/internal/flagx"
)

// parseFlags applies the short command-line flags. Flags override every
// other source.
//
//	-a string   HTTP bind address
//	-g string   gRPC bind address
//	-d string   PostgreSQL DSN
//	-s string   CSRF signing secret
//	-r string   Redis address for rate limiting
//	-l string   log backend, "slog" or "zap"
//	-m int      failed attempts before lockout
//	-o duration lockout duration
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-s", "-r", "-l", "-m", "-o"})

	fs := flag.NewFlagSet("folioguard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "HTTP address and port")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "gRPC address and port")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.CSRFSecret, "s", cfg.CSRFSecret, "CSRF secret")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.LogBackend, "l", cfg.LogBackend, "log backend")
	fs.IntVar(&cfg.MaxFailedAttempts, "m", cfg.MaxFailedAttempts, "failed attempts before lockout")
	fs.DurationVar(&cfg.LockoutDuration, "o", cfg.LockoutDuration, "lockout duration")

	return fs.Parse(args)
}
