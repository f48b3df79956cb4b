package main

import (
	"context"
	"flag"
	"os"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/config"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/app"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

var cliArgs struct {
	cmd string
}

func init() {
	flag.StringVar(&cliArgs.cmd, "cmd", "", "Command to run. Available commands: setup")

	flag.Parse()
}

func showHelpAndExit() {
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	if cliArgs.cmd == "" {
		showHelpAndExit()
	}
	ctx := context.Background()

	appCfg := config.LoadAppConfig()

	diag.SetupLoggingSystem(func(setup diag.LoggingSystemSetup) {
		setup.SetLogLevel(appCfg.Log.Level.Value())
		setup.SetLogFile(appCfg.Log.File.Value())
	})

	injector := app.BootstrapServices(appCfg)

	switch cliArgs.cmd {
	case "setup":
		if err := injector(func(storage dal.Storage) error {
			return storage.Setup(ctx)
		}); err != nil {
			logger.WithError(err).Error(ctx, "Failed to setup storage")
			os.Exit(1)
		}

	default:
		showHelpAndExit()
	}
}
