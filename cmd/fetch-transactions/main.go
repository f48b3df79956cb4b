package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/config"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/app"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

var cliArgs struct {
	user            string
	ledgerAccountID string
	from            string
	to              string
}

func showHelpAndExit() {
	flag.PrintDefaults()
	os.Exit(1)
}

func init() {
	flag.StringVar(&cliArgs.user, "user", "", "User to fetch transactions for")
	flag.StringVar(&cliArgs.ledgerAccountID, "account", "", "Ledger account ID to fetch for")
	flag.StringVar(&cliArgs.from, "from", "", "Fetch from date (YYYY-MM-DD), 30 days ago by default")
	flag.StringVar(&cliArgs.to, "to", "", "Fetch to date (YYYY-MM-DD), today by default")

	flag.Parse()
}

func parseDateArg(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	date, err := fints.ParseISODate(value)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		showHelpAndExit()
	}
	return date
}

func main() {
	if cliArgs.user == "" || cliArgs.ledgerAccountID == "" {
		showHelpAndExit()
	}
	now := time.Now()
	params := &banks.FetchParams{
		LedgerAccountID: cliArgs.ledgerAccountID,
		From:            parseDateArg(cliArgs.from, now.AddDate(0, 0, -30)),
		To:              parseDateArg(cliArgs.to, now),
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
		transactions, err := fetcher.Fetch(ctx, params)
		if err != nil {
			return err
		}
		for _, trx := range transactions {
			dto, err := trx.ToDTO()
			if err != nil {
				return err
			}
			if err := storage.SavePendingTransaction(ctx, dto); err != nil {
				return err
			}
			fmt.Printf("%v %v %v %v\n", dto.Date, dto.TypeID, dto.Amount, dto.Comment)
		}
		logger.Info(ctx, "Stored %v transactions", len(transactions))
		return nil
	}); err != nil {
		logger.WithError(err).Error(ctx, "Failed to fetch transactions")
		os.Exit(1)
	}
}
