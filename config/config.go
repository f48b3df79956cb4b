package config

import (
	"context"

	uuid "github.com/satori/go.uuid"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/config"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/version"
)

var appEnv = config.NewAppEnv(version.AppName)
var configBuilder = config.NewBuilder(appEnv)

var localParams = configBuilder.NewParamsBuilder(configBuilder.LocalSource())
var remoteParams = configBuilder.NewParamsBuilder(configBuilder.RemoteSource())

// Do not change vars below at runtime
var (
	LogLevel = localParams.String("log/logLevel")
	LogFile  = localParams.String("log/logFile")

	StorageDriver = localParams.String("storage/driver")
	StorageDSN    = localParams.String("storage/data-source-name")

	FetcherConfigConfigDir = localParams.String("fetcher-config/config-dir")

	FinTSProductVersion  = localParams.String("fints/product-version")
	FinTSTanPollInterval = localParams.Duration("fints/tan-poll-interval")
	FinTSTanTimeout      = localParams.Duration("fints/tan-timeout")
	FinTSHTTPTimeout     = localParams.Duration("fints/http-timeout")

	// FinTSProductID is a product id registered with the German banking industry
	FinTSProductID = remoteParams.String("fints/product-id")
)

// Log represents logger specific options
type Log struct {
	Level config.StringVal
	File  config.StringVal
}

// Storage represents storage settings
type Storage struct {
	Driver config.StringVal
	DSN    config.StringVal
}

// FetcherConfig represents settings of a fetcher-config service
type FetcherConfig struct {
	ConfigDir config.StringVal
}

// FinTS represents settings of bank dialogs
type FinTS struct {
	ProductID       config.StringVal
	ProductVersion  config.StringVal
	TanPollInterval config.DurationVal
	TanTimeout      config.DurationVal
	HTTPTimeout     config.DurationVal
}

// AppConfig is a toplevel config structure
type AppConfig struct {
	Log           Log
	Storage       Storage
	FetcherConfig FetcherConfig
	FinTS         FinTS
}

// Load will load and initialize config
func Load() config.ServiceConfig {
	ctx := diag.ContextWithRequestID(context.Background(), uuid.NewV4().String())
	cfg, err := configBuilder.LoadConfig(ctx)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadAppConfig will load and initialize app config structure
func LoadAppConfig() *AppConfig {
	cfg := Load()

	appCfg := AppConfig{
		Log: Log{
			Level: cfg.String(LogLevel),
			File:  cfg.String(LogFile),
		},
		Storage: Storage{
			Driver: cfg.String(StorageDriver),
			DSN:    cfg.String(StorageDSN),
		},
		FetcherConfig: FetcherConfig{
			ConfigDir: cfg.String(FetcherConfigConfigDir),
		},
		FinTS: FinTS{
			ProductID:       cfg.String(FinTSProductID),
			ProductVersion:  cfg.String(FinTSProductVersion),
			TanPollInterval: cfg.Duration(FinTSTanPollInterval),
			TanTimeout:      cfg.Duration(FinTSTanTimeout),
			HTTPTimeout:     cfg.Duration(FinTSHTTPTimeout),
		},
	}

	return &appCfg
}
