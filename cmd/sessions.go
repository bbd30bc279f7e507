package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mocap/config"
	"mocap/record"
)

var dsn string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded capture sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dsn == "" {
			dsn = config.Get().RecordDSN
		}
		if dsn == "" {
			return fmt.Errorf("no recording database, set --dsn or RecordDSN")
		}
		store, err := record.Open(dsn)
		if err != nil {
			return err
		}
		return runSessions(store)
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&dsn, "dsn", "", "MySQL DSN of the recording database")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(store *record.Store) error {
	sessions, err := store.Sessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSIZE\tFACING")
	fmt.Fprintln(w, "--\t-------\t----\t------")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\n", s.UUID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Width, s.Height, s.Facing)
	}
	return w.Flush()
}
