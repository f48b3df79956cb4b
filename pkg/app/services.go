package app

import (
	"context"
	"database/sql"

	"go.uber.org/dig"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/config"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
)

// Injector is a function that will inject desired services
// to a target function
type Injector func(function interface{}) error

// FetcherFactory creates a FinTS fetcher of a given user
type FetcherFactory func(ctx context.Context, userID string, tanHandler fints.TanHandler) (*fints.Fetcher, error)

// BootstrapServices setup di container with all app services
func BootstrapServices(appCfg *config.AppConfig) Injector {
	c := dig.New()

	c.Provide(func() (*sql.DB, error) {
		return sql.Open(appCfg.Storage.Driver.Value(), appCfg.Storage.DSN.Value())
	})

	c.Provide(func(db *sql.DB) (dal.Storage, error) {
		return dal.NewSQLStorage(dal.WithSQLDb(db))
	})

	c.Provide(func() banks.FetcherConfig {
		return banks.NewFSFetcherConfig(appCfg.FetcherConfig.ConfigDir.Value())
	})

	c.Provide(func() fints.SessionFactory {
		return func(opts ...fints.SessionOpt) *fints.Session {
			return fints.NewSession(append([]fints.SessionOpt{
				fints.WithHTTPTimeout(appCfg.FinTS.HTTPTimeout.Value()),
				fints.WithProductID(appCfg.FinTS.ProductID.Value()),
				fints.WithProductVersion(appCfg.FinTS.ProductVersion.Value()),
			}, opts...)...)
		}
	})

	c.Provide(func(
		fetcherConfig banks.FetcherConfig,
		storage dal.Storage,
		newSession fints.SessionFactory,
	) FetcherFactory {
		return func(ctx context.Context, userID string, tanHandler fints.TanHandler) (*fints.Fetcher, error) {
			return fints.NewFetcher(ctx, userID, fetcherConfig,
				fints.WithSessionFactory(newSession),
				fints.WithSystemIDStorage(storage),
				fints.WithTanHandler(tanHandler),
				fints.WithFetcherProductID(appCfg.FinTS.ProductID.Value()),
				fints.WithTanPolling(appCfg.FinTS.TanPollInterval.Value(), appCfg.FinTS.TanTimeout.Value()),
			)
		}
	})

	return func(function interface{}) error {
		return c.Invoke(function)
	}
}
