package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	output  = "text" // "text" or "json"
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "fanout",
	Short: "FriendlyPix fan-out CLI - run cascades, moderation and jobs",
	Long: `fanout runs the FriendlyPix consistency operations directly against the
configured tree store, identity directory and collaborators.
Configuration comes from the environment, .env and CONFIG_FILE.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose progress output")

	rootCmd.AddCommand(cascadeCmd)
	rootCmd.AddCommand(moderateCmd)
	rootCmd.AddCommand(blurCheckCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(hookCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
