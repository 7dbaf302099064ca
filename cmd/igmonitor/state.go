package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"igmonitor/pkg/config"
	"igmonitor/pkg/state"
)

// stateCmd represents the state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the processed-content state",
	Long: `Inspect or reset the state file that records which posts and stories have
already been processed.

Resetting an account makes the next run treat all of its current content as
new, which reprocesses and re-uploads everything within the fetch window.`,
}

// stateShowCmd represents the state show command
var stateShowCmd = &cobra.Command{
	Use:   "show [username]",
	Short: "Show tracked accounts and their seen-item counts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStateShow,
}

// stateResetCmd represents the state reset command
var stateResetCmd = &cobra.Command{
	Use:   "reset <username>",
	Short: "Drop all state for one account",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}

func openStateStore() (*state.Store, error) {
	cfg, err := config.Load(configFile, config.Flags{LogLevel: effectiveLogLevel()})
	if err != nil {
		return nil, err
	}

	store, err := state.Load(cfg.Monitor.StateFile)
	if err != nil {
		return nil, fmt.Errorf("state file is unreadable: %w", err)
	}
	return store, nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return err
	}

	usernames := store.Usernames()
	if len(args) == 1 {
		usernames = []string{args[0]}
	}

	if len(usernames) == 0 {
		fmt.Println("No accounts tracked yet.")
		return nil
	}

	for _, username := range usernames {
		posts, stories := store.Stats(username)
		fmt.Printf("%s\n", username)
		fmt.Printf("  posts seen:   %d\n", posts)
		fmt.Printf("  stories seen: %d\n", stories)
		if lastRun := store.LastRun(username); !lastRun.IsZero() {
			fmt.Printf("  last run:     %s\n", lastRun.Format("2006-01-02 15:04:05 MST"))
		}
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return err
	}

	username := args[0]
	posts, stories := store.Stats(username)
	if posts == 0 && stories == 0 {
		fmt.Printf("No state recorded for %s.\n", username)
		return nil
	}

	store.Reset(username)
	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	fmt.Printf("Dropped %d posts and %d stories for %s. The next run reprocesses its current content.\n",
		posts, stories, username)
	return nil
}
