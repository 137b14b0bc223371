package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brandon/mail-archive/internal/archive"
	"github.com/brandon/mail-archive/internal/config"
)

var (
	version = "dev"

	providerFlag string
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "mail-archive",
	Short: "Archive IMAP folders to local disk and an SMB NAS share",
	Long: `mail-archive downloads messages and attachments from an IMAP mailbox
into per-message directories, optionally mirrors them to a NAS over SMB
with skip-if-present semantics, and can clean archived messages from the
server under a retention rule.

Credentials come from the environment: MAIL_EMAIL and MAIL_PASSWORD for
the mailbox, NAS_HOST/NAS_SHARE/NAS_USERNAME/NAS_PASSWORD for the NAS.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "Mail provider (gmx, gmail, outlook, custom, or one from the providers file)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "providers-file", "", "Path to a providers.yaml file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(testMailCmd)
	rootCmd.AddCommand(testNASCmd)
	rootCmd.AddCommand(historyCmd)
}

// newLogger builds the shared logger. Output goes to stderr so tables on
// stdout stay machine-readable.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// loadConfig resolves the full configuration and the logger for a command.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(providerFlag, configFlag)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	return cfg, newLogger(level), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if archive.IsConnectionError(err) {
			fmt.Fprintln(os.Stderr, "Check the provider settings and credentials, then retry with test-mail or test-nas.")
		}
		os.Exit(1)
	}
}
