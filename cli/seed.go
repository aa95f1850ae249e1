package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/operatornetwork/opnet/common"
	"github.com/operatornetwork/opnet/config"
	"github.com/operatornetwork/opnet/models"
	"github.com/operatornetwork/opnet/store"
)

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "seed the database with demo operations and operators",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of demo operations to create")
}

var seedDifficulties = []models.Difficulty{
	models.DifficultyBeginner,
	models.DifficultyIntermediate,
	models.DifficultyAdvanced,
	models.DifficultyExpert,
}

func runSeed(cmd *cobra.Command, args []string) error {
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

	now := time.Now().UTC()

	operator := models.OperatorProfile{
		Handle:    "demo-operator",
		Skills:    []string{"recon", "analysis"},
		XP:        0,
		Rank:      models.RankForXP(0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	operatorID := uuid.NewString()
	doc, err := store.Encode(operator)
	if err != nil {
		return err
	}
	if err := couch.Put(ctx, store.CollectionOperators, operatorID, doc); err != nil {
		return err
	}
	log.WithField("operator", operatorID).Info("seeded demo operator")

	machineID := uuid.NewString()
	for i := 0; i < seedCount; i++ {
		op := models.Operation{
			MachineID:  machineID,
			Title:      fmt.Sprintf("Demo operation %d", i+1),
			Status:     models.StatusOpen,
			Difficulty: seedDifficulties[i%len(seedDifficulties)],
			Reward:     models.Reward{XP: 100 * (i%4 + 1)},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		id := uuid.NewString()
		doc, err := store.Encode(op)
		if err != nil {
			return err
		}
		if err := couch.Put(ctx, store.CollectionOperations, id, doc); err != nil {
			return err
		}
	}
	log.WithField("count", seedCount).Info("seeded demo operations")
	return nil
}
