package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-sync/internal/banksync"
	"github.com/dvloznov/budget-sync/internal/config"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/runreport"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync()
	case "accounts":
		runAccounts()
	case "report":
		runReport()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Budget Sync CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  sync       Run one bank sync and print its summary")
	fmt.Println("  accounts   List mirrored accounts and balances")
	fmt.Println("  report     Print an archived run report")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nConfiguration is read from the environment and .env.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(logger.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)
}

func runSync() {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "Print the result as JSON")
	earliest := fs.String("earliest", "", "Override SYNC_EARLIEST_DATE (YYYY-MM-DD)")
	archive := fs.Bool("archive", true, "Archive the run report when REPORT_BUCKET is set")
	fs.Parse(os.Args[2:])

	cfg, log := setup()
	if *earliest != "" {
		t, err := parseDate(*earliest)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -earliest")
		}
		cfg.Sync.EarliestSyncDate = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	stores, err := config.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	svc, err := config.NewService(cfg, stores, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sync service")
	}

	result, runErr := svc.Run(ctx)

	if *archive {
		reports, closeReports, err := config.NewReportStore(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Run report archive unavailable")
		} else {
			balances, _ := stores.Accounts.FindByBank(ctx, svc.Options().Bank)
			runreport.Archive(ctx, reports, runreport.New(result, balances, runErr))
			_ = closeReports()
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printResult(result)
	}

	switch {
	case runErr != nil:
		log.Error().Err(runErr).Msg("Sync aborted")
		os.Exit(2)
	case result.Failed():
		os.Exit(1)
	}
}

func printResult(r *banksync.SyncResult) {
	fmt.Printf("Run %s finished in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Printf("  Accounts:     %d created, %d updated, %d unchanged\n", r.AccountsCreated, r.AccountsUpdated, r.AccountsUnchanged)
	fmt.Printf("  Transactions: %d new, %d updated, %d skipped\n", r.TransactionsNew, r.TransactionsUpdated, r.TransactionsSkipped)
	for _, acc := range r.Accounts {
		status := "ok"
		if acc.Error != "" {
			status = acc.Error
		}
		fmt.Printf("    %-24s new=%d updated=%d skipped=%d  %s\n", acc.AccountID, acc.Counts.New, acc.Counts.Updated, acc.Counts.Skipped, status)
	}
	if len(r.Errors) > 0 {
		fmt.Printf("  Errors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}

func runAccounts() {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	bank := fs.String("bank", "", "Bank tag to list (defaults to the sync bank)")
	fs.Parse(os.Args[2:])

	cfg, log := setup()
	ctx := logger.WithContext(context.Background(), log)

	stores, err := config.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	tag := *bank
	if tag == "" {
		tag = banksync.DefaultOptions().Bank
	}

	accounts, err := stores.Accounts.FindByBank(ctx, tag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list accounts")
	}

	if len(accounts) == 0 {
		fmt.Println("No accounts found.")
		return
	}

	fmt.Printf("%-24s %-28s %-4s %14s  %s\n", "EXTERNAL ID", "NAME", "CCY", "BALANCE", "LAST SYNC")
	for _, acc := range accounts {
		lastSync := "never"
		if acc.LastSyncTime != nil {
			lastSync = acc.LastSyncTime.Format("2006-01-02 15:04:05Z07:00")
		}
		fmt.Printf("%-24s %-28s %-4s %14s  %s\n", acc.ExternalID, acc.Name, acc.Currency, runreport.FormatMinor(acc.Balance), lastSync)
	}
}

func runReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	object := fs.String("object", "", "Report object name, e.g. sync-runs/2026/03/15/<run-id>.json")
	fs.Parse(os.Args[2:])

	cfg, log := setup()
	if *object == "" {
		log.Fatal().Msg("Error: -object is required")
	}
	if cfg.ReportBucket == "" {
		log.Fatal().Msg("Error: REPORT_BUCKET is not set")
	}

	ctx := logger.WithContext(context.Background(), log)
	objects, err := runreport.NewGCSStorage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer objects.Close()

	report, err := runreport.NewBucketStore(objects, cfg.ReportBucket).Load(ctx, *object)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load report")
	}

	fmt.Printf("Status: %s\n", report.Status)
	if report.Abort != "" {
		fmt.Printf("Abort:  %s\n", report.Abort)
	}
	if report.Result == nil {
		log.Fatal().Err(errors.New("report has no result")).Msg("Malformed report")
	}
	printResult(report.Result)
	for _, b := range report.Balances {
		fmt.Printf("  %-24s %14s %s\n", b.AccountID, b.Amount, b.Currency)
	}
}
