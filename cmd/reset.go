package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanobook/nanobook/internal/app"
)

var flagResetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every indexed record and stored upload",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset()
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&flagResetYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	if !flagResetYes {
		fmt.Print("This deletes the entire document collection. Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	records, err := a.Pipeline.Reset(ctx)
	if err != nil {
		return err
	}
	files, err := a.Uploads.Clear()
	if err != nil {
		return err
	}

	fmt.Printf("cleared %d records and %d stored files\n", records, files)
	return nil
}
