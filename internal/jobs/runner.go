package jobs

import (
	"context"

	"github.com/dvloznov/budget-sync/internal/banksync"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/dvloznov/budget-sync/internal/runreport"
)

// Runner executes one sync run.
type Runner interface {
	Run(ctx context.Context) (*banksync.SyncResult, error)
	Options() banksync.Options
}

// RunSync returns a handler that runs a sync, records its result on the job
// and archives a run report. The job fails only when the run itself returns an
// error; recorded per-account errors leave it completed.
func RunSync(runner Runner, accounts repository.AccountRepository, reports runreport.Store) JobHandler {
	return func(ctx context.Context, job *SyncJob) error {
		log := logger.FromContext(ctx)

		result, runErr := runner.Run(ctx)
		job.Result = result
		if result == nil {
			return runErr
		}

		balances, err := accounts.FindByBank(ctx, runner.Options().Bank)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load balances for run report")
		}

		report := runreport.New(result, balances, runErr)
		location, err := reports.Save(ctx, report)
		if err != nil {
			log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to archive run report")
		} else {
			job.ReportLocation = location
		}

		return runErr
	}
}
