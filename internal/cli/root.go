package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/ingestd/internal/logging"
)

const version = "0.1.0"

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking INGESTD_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("INGESTD_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the ingestctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ingestctl",
		Short:   "ingestctl submits item batches to an ingestd server",
		Long:    "ingestctl submits item IDs with a priority to ingestd and follows their batches to completion.",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "ingestd server URL (or INGESTD_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "pretty", "Log format (text, json, pretty)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newListCmd(),
		newWatchCmd(),
		newHealthCmd(),
	)

	return root
}
