package main

import (
	"fmt"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/fedspending/data-broker/internal/config"
	"github.com/fedspending/data-broker/internal/generation"
	"github.com/fedspending/data-broker/internal/service"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type generateOptions struct {
	fileType     string
	agencyCode   string
	start        string
	end          string
	submissionID int64
	userID       string
}

var generateOpts generateOptions

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Queue the generation of a D1, D2, E or F file",
	Example: `  broker generate --file-type D1 --agency 097 --start 01/01/2021 --end 03/31/2021
  broker generate --file-type E --submission 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		blobs, err := blob.New(cfg)
		if err != nil {
			return fmt.Errorf("initializing file storage: %w", err)
		}

		svc := newGenerationService(cfg, s, blobs)
		jobID, err := svc.StartGeneration(cmd.Context(), generateOpts.request(cmd.Flags()))
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), jobID)
		return nil
	},
}

func init() {
	flags := generateCmd.Flags()
	flags.StringVarP(&generateOpts.fileType, "file-type", "t", "", "file type to generate: D1, D2, E or F")
	flags.StringVarP(&generateOpts.agencyCode, "agency", "a", "", "agency code, when no submission is given")
	flags.StringVar(&generateOpts.start, "start", "", "first day of the range, MM/DD/YYYY")
	flags.StringVar(&generateOpts.end, "end", "", "last day of the range, MM/DD/YYYY")
	flags.Int64VarP(&generateOpts.submissionID, "submission", "s", 0, "submission the file belongs to")
	flags.StringVarP(&generateOpts.userID, "user", "u", "", "owner of the generated file")
	_ = generateCmd.MarkFlagRequired("file-type")
}

// request leaves the optional fields nil unless their flag was given.
func (o generateOptions) request(flags *pflag.FlagSet) service.StartRequest {
	req := service.StartRequest{
		FileType:   model.FileType(o.fileType),
		AgencyCode: o.agencyCode,
		UserID:     o.userID,
	}
	if flags.Changed("submission") {
		req.SubmissionID = &o.submissionID
	}
	if flags.Changed("start") {
		req.Start = &o.start
	}
	if flags.Changed("end") {
		req.End = &o.end
	}
	return req
}

func newGenerationService(cfg *config.Config, s store.Store, blobs blob.Store) *service.GenerationService {
	var opts []service.GenerationServiceOption
	if cfg.Service.IsLocal {
		opts = append(opts, service.WithLocalFiles(cfg.Generation.BrokerFiles))
	}
	return service.NewGenerationService(s, blobs, generation.NewTaskQueue(s.Task()), opts...)
}
