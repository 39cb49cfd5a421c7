package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vfs-go/internal/app"
	"vfs-go/internal/config"
	"vfs-go/internal/output"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a VFSApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "create", "publish").
func newApp(operation string) (*app.VFSApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := readConfig(defaults)
	if err != nil {
		return nil, err
	}

	a, err := app.NewVFSApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig(defaults *app.Defaults) (*config.Config, error) {
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// closeApp closes a and reports a failed snapshot upload without masking
// the command's own error.
func closeApp(a *app.VFSApp) {
	if err := a.Close(); err != nil {
		fmt.Fprintln(os.Stderr, output.Error(fmt.Sprintf("closing: %v", err)))
	}
}

var rootCmd = &cobra.Command{
	Use:   "vfs",
	Short: "Staged content management with project publishing",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			output.SetColor(false)
		}
	},
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		siteRoot, _ := cmd.Flags().GetString("site-root")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := defaults.DefaultConfig(siteRoot)
		cfg.Vaults[0].Name = "local-" + uuid.New().String()[:8]

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Site Root:  %s\n", cfg.SiteRoot)
		fmt.Printf("User:       %s\n", cfg.User)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Cache:      %s\n", cfg.Cache.Type)
		fmt.Printf("History:    %d weeks, pruned %s\n", cfg.History.MaxAgeWeeks, cfg.History.PruneSchedule)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("site-root", "", "Site root prefixed to every path")

	rootCmd.AddCommand(configCmd)
}
