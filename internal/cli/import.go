package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"assessment-service/internal/config"
	"assessment-service/internal/infra/postgres"
	"assessment-service/internal/ingest"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewImportCmd loads a CSV question set into Postgres as a new assessment.
func NewImportCmd(configPath *string) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV question set as an assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			assessment, err := ingest.ParseCSV(f, title, time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewAssessmentStore(pool).SaveAssessment(ctx, assessment); err != nil {
				return err
			}
			log.Printf("imported assessment %s (%d questions)", assessment.ID, len(assessment.Questions))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "assessment title (defaults to the file name)")
	return cmd
}
