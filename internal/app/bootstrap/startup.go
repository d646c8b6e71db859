// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	emailverifystore "github.com/dalemusser/stratabook/internal/app/store/emailverify"
	oauthstatestore "github.com/dalemusser/stratabook/internal/app/store/oauthstate"
	"github.com/dalemusser/stratabook/internal/app/system/license"
	"github.com/dalemusser/stratabook/internal/app/system/tasks"
	"github.com/dalemusser/stratabook/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It applies the configured timeouts, builds the license checker shared with
// the session routes and starts the background task runner.
//
// Returning a non-nil error will abort startup and prevent the server from
// starting.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:    appCfg.TimeoutShort,
		Medium:   appCfg.TimeoutMedium,
		External: appCfg.TimeoutExternal,
	})
	licenseChecker = newLicenseChecker(appCfg, deps, logger)
	startTaskRunner(appCfg, deps, licenseChecker, logger)
	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// licenseChecker is built once so the warm job and request handlers share
// its cache.
var licenseChecker *license.Checker

func newLicenseChecker(appCfg AppConfig, deps DBDeps, logger *zap.Logger) *license.Checker {
	var cache license.Cache
	if deps.Redis != nil {
		cache = license.NewRedisCache(deps.Redis)
	}
	return license.NewChecker(license.Config{
		Key:      appCfg.LicenseKey,
		URL:      appCfg.LicenseURL,
		CacheTTL: appCfg.LicenseCacheTTL,
	}, cache, logger)
}

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(appCfg AppConfig, deps DBDeps, checker *license.Checker, logger *zap.Logger) {
	db := deps.MongoDatabase
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.MagicLinkCleanupJob(emailverifystore.New(db, appCfg.MagicLinkExpiry), logger))
	taskRunner.Register(tasks.OAuthStateCleanupJob(oauthstatestore.New(db), logger))
	if appCfg.LicenseKey != "" {
		taskRunner.Register(tasks.LicenseWarmJob(checker))
	}

	taskRunner.Start()
}
