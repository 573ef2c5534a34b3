package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("NanoBook %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			fmt.Println()
			fmt.Println("GEMINI_API_KEY is not set; model calls will fail.")
			fmt.Println("  export GEMINI_API_KEY=your-api-key")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
