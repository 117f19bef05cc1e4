// Package ratelimit counts requests per bucket and key. Buckets carry their
// own limit and window.
package ratelimit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/server/config"
)

type Bucket string

const (
	BucketEmail    Bucket = "email"
	BucketLogin    Bucket = "login"
	BucketRegister Bucket = "register"
)

type Rule struct {
	Limit  int
	Window time.Duration
}

type Rules map[Bucket]Rule

// RulesFromConfig builds the bucket table from the server config.
func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{
		BucketEmail:    {Limit: cfg.EmailLimit, Window: cfg.EmailWindow},
		BucketLogin:    {Limit: cfg.LoginLimit, Window: cfg.LoginWindow},
		BucketRegister: {Limit: cfg.RegisterLimit, Window: cfg.RegisterWindow},
	}
}

// Limiter reports whether one more request for key in bucket is allowed and
// counts it if so. Buckets without a rule are unlimited.
type Limiter interface {
	Allow(ctx context.Context, bucket Bucket, key string) (bool, error)
}
