package cli

import (
	"fmt"
	"io"

	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/database"
	"github.com/mroshb/quiz_bot/internal/importer"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/pool"
	"github.com/mroshb/quiz_bot/internal/repositories"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/spf13/cobra"
)

// NewImportCmd builds the subcommand that converts a spreadsheet into a question pool.
func NewImportCmd() *cobra.Command {
	var poolName, target string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Import questions from a spreadsheet into a question pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if target == "" {
				target = cfg.PoolSource
			}

			res, err := importer.ReadWorkbook(args[0])
			if err != nil {
				return err
			}
			for _, skipped := range res.Skipped {
				logger.Warn("Skipped spreadsheet row", "sheet", skipped.Sheet, "row", skipped.Row, "error", skipped.Err)
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %v\n", skipped)
			}
			if len(res.Questions) == 0 {
				return fmt.Errorf("no valid questions in %s", args[0])
			}

			name := resolvePool(poolName)
			if dryRun {
				printQuestions(cmd.OutOrStdout(), res.Questions)
				return nil
			}

			switch target {
			case config.PoolSourceFile:
				src := pool.NewFileSource(cfg.DataDir)
				if err := src.Save(cmd.Context(), name, res.Questions); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d question(s) into %s\n", len(res.Questions), src.Path(name))

			case config.PoolSourceDatabase:
				db, err := openDatabase(cfg)
				if err != nil {
					return err
				}
				defer database.Close(db)
				if err := repositories.NewQuestionRepository(db).ReplacePool(cmd.Context(), name, res.Questions); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d question(s) into pool %s\n", len(res.Questions), name)

			default:
				return fmt.Errorf("unknown target %q, want %s or %s", target, config.PoolSourceFile, config.PoolSourceDatabase)
			}

			logger.Info("Questions imported", "pool", name, "target", target, "count", len(res.Questions), "skipped", len(res.Skipped))
			return nil
		},
	}

	cmd.Flags().StringVar(&poolName, "pool", "main", "pool to replace: main, blitz or a pool name")
	cmd.Flags().StringVar(&target, "target", "", "file or database (default POOL_SOURCE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the parsed questions without writing them")
	return cmd
}

func printQuestions(w io.Writer, questions []models.Question) {
	for i, q := range questions {
		fmt.Fprintf(w, "%d. %s (%d point(s), %s)\n", i+1, q.Text, q.Score(), q.Layout)
		for _, o := range q.Options {
			mark := " "
			if o.Correct {
				mark = "*"
			}
			fmt.Fprintf(w, "   [%s] %s\n", mark, o.Text)
		}
		for _, a := range q.Attachments {
			fmt.Fprintf(w, "   attachment: %s\n", a)
		}
	}
}

func resolvePool(name string) string {
	switch name {
	case "main", "":
		return models.PoolMain
	case "blitz":
		return models.PoolBlitz
	}
	return name
}
