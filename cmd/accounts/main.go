package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	uuid "github.com/satori/go.uuid"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/config"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/app"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

var cliArgs struct {
	user string
}

func init() {
	flag.StringVar(&cliArgs.user, "user", "", "User to list bank accounts of")

	flag.Parse()
}

func main() {
	if cliArgs.user == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	appCfg := config.LoadAppConfig()

	diag.SetupLoggingSystem(func(setup diag.LoggingSystemSetup) {
		setup.SetLogLevel(appCfg.Log.Level.Value())
		setup.SetLogFile(appCfg.Log.File.Value())
	})

	injector := app.BootstrapServices(appCfg)

	ctx := diag.ContextWithRequestID(context.Background(), uuid.NewV4().String())

	if err := injector(func(newFetcher app.FetcherFactory, storage dal.Storage) error {
		if err := storage.Setup(ctx); err != nil {
			return err
		}
		fetcher, err := newFetcher(ctx, cliArgs.user, app.NewConsoleTanHandler(os.Stdin, os.Stdout))
		if err != nil {
			return err
		}
		accounts, err := fetcher.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			fmt.Printf("%v\t%v\t%v\t%v\t%v\n", account.IBAN, account.AccountNumber, account.Currency, account.AccountType, account.OwnerName)
		}
		return nil
	}); err != nil {
		logger.WithError(err).Error(ctx, "Failed to list accounts")
		os.Exit(1)
	}
}
