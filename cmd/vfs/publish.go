package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vfs-go/internal/output"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp("publish")
		if err != nil {
			return err
		}
		defer closeApp(a)

		result, err := a.Publish(output.NewConsoleReporter(os.Stdout, verbose))
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		output.PrintPublishResult(os.Stdout, result)
		return nil
	},
}

var publishResourceCmd = &cobra.Command{
	Use:   "publish-resource PATH",
	Short: "Publish a single resource (a folder includes its subtree)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("publish-resource")
		if err != nil {
			return err
		}
		defer closeApp(a)

		result, err := a.PublishResource(args[0], dryRun, output.NewConsoleReporter(os.Stdout, verbose))
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		if dryRun {
			output.PrintPending(os.Stdout, result)
			return nil
		}
		output.PrintPublishResult(os.Stdout, result.Result)
		return nil
	},
}

var checkLinksCmd = &cobra.Command{
	Use:   "check-links",
	Short: "List links that would break when the current project is published",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("check-links")
		if err != nil {
			return err
		}
		defer closeApp(a)

		links, err := a.CheckBrokenLinks()
		if err != nil {
			return err
		}
		if len(links) == 0 {
			fmt.Println("No broken links.")
			return nil
		}
		output.PrintBrokenLinks(os.Stdout, links)
		return nil
	},
}

func init() {
	publishCmd.Flags().BoolP("verbose", "v", false, "List every published resource")
	publishResourceCmd.Flags().BoolP("verbose", "v", false, "List every published resource")
	publishResourceCmd.Flags().Bool("dry-run", false, "Show what would be published")

	rootCmd.AddCommand(publishCmd, publishResourceCmd, checkLinksCmd)
}
