package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/operatornetwork/opnet/common"
	"github.com/operatornetwork/opnet/config"
	"github.com/operatornetwork/opnet/reconcile"
	"github.com/operatornetwork/opnet/reward"
	"github.com/operatornetwork/opnet/store"
)

var reconcilerCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "run the reward reconciliation worker",
	Long: `Start the reconciliation worker.

The worker drains the Redis queue of reward applications that failed after
their verification committed, replaying each against the profile store.
Jobs that keep failing are moved to a dead-letter list for manual review.`,
	RunE: runReconciler,
}

func runReconciler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	common.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)
	log := common.Logger

	ctx := context.Background()

	couch, err := store.NewCouch(ctx, store.CouchConfig{
		URL:             cfg.Database.URL,
		Database:        cfg.Database.Database,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		CreateIfMissing: cfg.Database.CreateIfMissing,
	}, log)
	if err != nil {
		return err
	}
	defer couch.Close()

	queue, err := reconcile.NewQueue(ctx, reconcile.Config{
		RedisURL:  cfg.Redis.URL,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return err
	}
	defer queue.Close()

	settler := reward.NewSettler(couch, queue, log)

	worker := reconcile.NewWorker(queue,
		func(ctx context.Context, job reconcile.Job) error {
			return settler.Apply(ctx, job.OperatorID, job.XP, job.Tokens)
		},
		reconcile.WorkerConfig{MaxAttempts: cfg.Redis.MaxAttempts},
		log,
	)
	worker.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	worker.Stop()
	return nil
}
