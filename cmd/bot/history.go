package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"replybot/internal/config"
	"replybot/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear stored conversation history",
	}
	cmd.PersistentFlags().StringVar(&snapshot, "snapshot", "", "history snapshot file (default: SNAPSHOT_PATH)")

	var asJSON bool
	show := &cobra.Command{
		Use:   "show [conversation-id]",
		Short: "Print a conversation, or list conversations when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(snapshot)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, id := range store.Conversations() {
					fmt.Fprintf(out, "%s\t%d\n", id, store.Len(id))
				}
				return nil
			}
			exchanges := store.Get(args[0])
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(exchanges)
			}
			if len(exchanges) == 0 {
				fmt.Fprintf(out, "no history for %s\n", args[0])
				return nil
			}
			for _, ex := range exchanges {
				fmt.Fprintf(out, "%s: %s\n", ex.Role, ex.Text())
			}
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print exchanges as JSON")

	reset := &cobra.Command{
		Use:   "reset <conversation-id>",
		Short: "Clear a conversation and rewrite the snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(snapshot)
			if err != nil {
				return err
			}
			n := store.Len(args[0])
			if err := store.Reset(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d exchanges from %s\n", n, args[0])
			return nil
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}

func openStore(path string) (*history.Store, error) {
	cfg, err := config.LoadUnvalidated()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = cfg.SnapshotPath
	}
	store := history.NewStore(path, cfg.ContextWindow)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}
