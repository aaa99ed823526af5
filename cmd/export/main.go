// Command export dumps the participant store to CSV files for analysis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgranvik/ladle/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "export",
	Short: "Export survey responses to CSV",
	Long:  `Reads every participant, recipe evaluation and post-survey row from the store and writes them as CSV files into the output directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, _ := cmd.Flags().GetString("driver")
		dsn, _ := cmd.Flags().GetString("dsn")
		out, _ := cmd.Flags().GetString("out")
		return runExport(driver, dsn, out)
	},
}

func init() {
	rootCmd.Flags().String("driver", "sqlite", "participant store driver (sqlite or postgres)")
	rootCmd.Flags().String("dsn", "data/survey.db", "database path or connection string")
	rootCmd.Flags().String("out", "export", "output directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runExport(driver, dsn, out string) error {
	var repo storage.Repository
	var err error
	switch driver {
	case "sqlite":
		repo, err = storage.NewSQLiteRepository(dsn)
	case "postgres":
		repo, err = storage.NewPostgresRepository(dsn)
	default:
		return fmt.Errorf("unknown driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	n, err := writeParticipants(repo, out)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d participants\n", n)

	n, err = writeEvaluations(repo, out)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d recipe evaluations\n", n)

	n, err = writePostSurveys(repo, out)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d post-survey rows\n", n)

	return nil
}
