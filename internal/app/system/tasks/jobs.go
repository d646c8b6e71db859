// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredDeleter removes records whose expiry has passed.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// LicenseRefresher re-checks the license and updates the cached verdict.
type LicenseRefresher interface {
	Refresh(ctx context.Context) error
}

// MagicLinkCleanupJob removes sign-in links that expired unused. The TTL
// index does the same eventually; this keeps the collection tight between
// TTL monitor passes.
func MagicLinkCleanupJob(links ExpiredDeleter, logger *zap.Logger) Job {
	return cleanupJob("magic-link-cleanup", "cleaned up expired magic links", links, logger)
}

// OAuthStateCleanupJob removes OAuth state tokens that were never redeemed.
func OAuthStateCleanupJob(states ExpiredDeleter, logger *zap.Logger) Job {
	return cleanupJob("oauth-state-cleanup", "cleaned up expired oauth states", states, logger)
}

func cleanupJob(name, msg string, d ExpiredDeleter, logger *zap.Logger) Job {
	return Job{
		Name:     name,
		Interval: time.Hour,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := d.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info(msg, zap.Int64("deleted", n))
			}
			return nil
		},
	}
}

// LicenseWarmJob refreshes the cached license verdict every hour so
// session requests rarely wait on the license server.
func LicenseWarmJob(license LicenseRefresher) Job {
	return Job{
		Name:     "license-warm",
		Interval: time.Hour,
		Timeout:  10 * time.Second,
		Run:      license.Refresh,
	}
}
