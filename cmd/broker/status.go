package main

import (
	"errors"
	"fmt"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/fedspending/data-broker/internal/config"
	"github.com/fedspending/data-broker/internal/service"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var (
	statusJobID        int64
	statusSubmissionID int64
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a generation job or of a submission",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (statusJobID == 0) == (statusSubmissionID == 0) {
			return errors.New("exactly one of --job or --submission is required")
		}

		cfg, err := config.New()
		if err != nil {
			return err
		}

		cleanup := initLogging(cfg)
		defer cleanup()

		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}
		s := store.NewStore(db)
		defer s.Close()

		var result any
		if statusJobID != 0 {
			blobs, err := blob.New(cfg)
			if err != nil {
				return fmt.Errorf("initializing file storage: %w", err)
			}
			result, err = newGenerationService(cfg, s, blobs).CheckGenerationStatus(cmd.Context(), statusJobID)
			if err != nil {
				return err
			}
		} else {
			result, err = service.NewSubmissionService(s).GetAggregatedSubmissionStatus(cmd.Context(), statusSubmissionID)
			if err != nil {
				return err
			}
		}

		out, err := yaml.Marshal(result)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	statusCmd.Flags().Int64VarP(&statusJobID, "job", "j", 0, "generation job id")
	statusCmd.Flags().Int64VarP(&statusSubmissionID, "submission", "s", 0, "submission id")
}
