package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vfs-go/internal/app"
	"vfs-go/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and restore published versions",
}

var historyLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List publish runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history log")
		if err != nil {
			return err
		}
		defer closeApp(a)

		records, err := a.PublishHistory(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("Nothing published yet.")
			return nil
		}
		return output.PrintPublishHistory(os.Stdout, records)
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list PATH",
	Short: "List the published versions of a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("history list")
		if err != nil {
			return err
		}
		defer closeApp(a)

		versions, err := a.Versions(args[0])
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No published versions.")
			return nil
		}
		return output.PrintVersions(os.Stdout, versions)
	},
}

// versionArgs parses PATH VERSION and asks for the passphrase when history
// is encrypted.
func versionArgs(args []string) (int64, string, error) {
	version, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid version %q", args[1])
	}
	defaults, err := app.GetDefaults()
	if err != nil {
		return 0, "", err
	}
	cfg, err := readConfig(defaults)
	if err != nil {
		return 0, "", err
	}
	if cfg.Encryption.Type == "" || cfg.Encryption.Type == "none" {
		return version, "", nil
	}
	pass, err := readPassphrase("History passphrase: ")
	return version, pass, err
}

var historyShowCmd = &cobra.Command{
	Use:   "show PATH VERSION",
	Short: "Print the content of a published version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, pass, err := versionArgs(args)
		if err != nil {
			return err
		}

		a, err := newApp("history show")
		if err != nil {
			return err
		}
		defer closeApp(a)

		backup, err := a.ReadVersion(args[0], version, pass)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(backup.Content)
		return err
	},
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore PATH VERSION",
	Short: "Restore a published version into the current project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, pass, err := versionArgs(args)
		if err != nil {
			return err
		}

		a, err := newApp("history restore")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.RestoreVersion(args[0], version, pass); err != nil {
			return err
		}
		fmt.Printf("Restored %s from version %d\n", args[0], version)
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove versions older than the configured age",
	RunE: func(cmd *cobra.Command, args []string) error {
		weeks, _ := cmd.Flags().GetInt("weeks")

		a, err := newApp("history prune")
		if err != nil {
			return err
		}
		defer closeApp(a)

		oldest, err := a.Prune(weeks)
		if err != nil {
			return err
		}
		if oldest == 0 {
			fmt.Println("History is empty.")
			return nil
		}
		fmt.Printf("Oldest remaining version: %d\n", oldest)
		return nil
	},
}

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List recorded operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ops")
		if err != nil {
			return err
		}
		defer closeApp(a)

		ops, err := a.Operations(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-8s  %-10s  %s\n",
				op.ID, op.Operation, op.StartedAt.Local().Format(time.DateTime), op.Status, duration, op.Parameters)
		}
		return nil
	},
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Prune history on the configured schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("scheduler")
		if err != nil {
			return err
		}
		defer closeApp(a)

		s, err := a.NewPruneScheduler()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Next prune at %s\n", s.Next().Local().Format(time.DateTime))
		s.Run(ctx)

		runs, lastErr := s.Runs()
		fmt.Printf("Stopped after %d run(s)\n", runs)
		return lastErr
	},
}

var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage history encryption",
}

var encryptionSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the key pair protecting history content",
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv(EnvPassphrase) == "" {
			again, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != pass {
				return fmt.Errorf("passphrases do not match")
			}
		}

		a, err := newApp("encryption setup")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.SetupEncryption(pass); err != nil {
			return err
		}
		fmt.Println("Encryption keys created.")
		return nil
	},
}

func init() {
	historyLogCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	historyPruneCmd.Flags().Int("weeks", 0, "Maximum age in weeks (default from config)")
	historyCmd.AddCommand(historyLogCmd, historyListCmd, historyShowCmd, historyRestoreCmd, historyPruneCmd)

	opsCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	encryptionCmd.AddCommand(encryptionSetupCmd)

	rootCmd.AddCommand(historyCmd, opsCmd, schedulerCmd, encryptionCmd)
}
