package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/recovery"
	"github.com/spf13/cobra"
)

// NewFlagsCmd inspects and clears crash flags of the configured recovery backend.
func NewFlagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Inspect or clear crash flags",
	}

	var verbose bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List crash flags, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store recovery.Store) error {
				flags, err := store.Flags(cmd.Context())
				if err != nil {
					return err
				}
				printFlags(cmd.OutOrStdout(), flags, verbose)
				return nil
			})
		},
	}
	listCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print stack traces")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every crash flag so the next start is fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store recovery.Store) error {
				n, err := store.ClearFlags(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d flag(s)\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func withStore(cmd *cobra.Command, fn func(store recovery.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, closeStore, err := openRecoveryStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

func printFlags(w io.Writer, flags []recovery.Flag, verbose bool) {
	if len(flags) == 0 {
		fmt.Fprintln(w, "no crash flags")
		return
	}
	for _, f := range flags {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.RaisedAt.Format(time.RFC3339), f.ID, f.Fault)
		if verbose && f.Trace != "" {
			fmt.Fprintf(w, "%s\n\n", f.Trace)
		}
	}
}
