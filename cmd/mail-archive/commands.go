package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brandon/mail-archive/internal/archive"
	"github.com/brandon/mail-archive/internal/config"
	"github.com/brandon/mail-archive/internal/history"
	"github.com/brandon/mail-archive/internal/mail"
	"github.com/brandon/mail-archive/internal/nas"
	"github.com/brandon/mail-archive/internal/report"
	"github.com/brandon/mail-archive/internal/retention"
	"github.com/brandon/mail-archive/pkg/types"
)

var (
	folderFlag      string
	outputFlag      string
	nasFlag         bool
	overwriteFlag   bool
	deleteLocalFlag bool
	cleanFlag       bool
	sinceFlag       string
	dryRunFlag      bool
	yesFlag         bool
	limitFlag       int
	errorsFlag      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mail folders and their message counts",
	RunE:  runList,
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Download a folder, optionally mirror it to the NAS and clean the server",
	RunE:  runArchive,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete messages from a folder without downloading them",
	Long: `Clean deletes messages from a server folder without materializing
them locally. With --since only messages older than the given age are
deleted. WITHOUT --since every message in the folder qualifies; this
delete-everything default always requires confirmation (or --yes).`,
	RunE: runClean,
}

var testMailCmd = &cobra.Command{
	Use:   "test-mail",
	Short: "Test the IMAP connection and exit",
	RunE:  runTestMail,
}

var testNASCmd = &cobra.Command{
	Use:   "test-nas",
	Short: "Test the NAS SMB connection and exit",
	RunE:  runTestNAS,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past archive runs",
	RunE:  runHistory,
}

func init() {
	for _, cmd := range []*cobra.Command{archiveCmd, cleanCmd} {
		cmd.Flags().StringVarP(&folderFlag, "folder", "f", "", "Folder name (see list)")
		cmd.Flags().BoolVarP(&dryRunFlag, "dry-run", "n", false, "Show what would be done without doing it")
		cmd.Flags().StringVar(&sinceFlag, "since", "", "Age expression for deletion, e.g. 30D, 2W, 6M, 1Y")
		cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the deletion confirmation prompt")
		cmd.MarkFlagRequired("folder") //nolint:errcheck
	}

	archiveCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Local output directory (default from ARCHIVE_OUTPUT)")
	archiveCmd.Flags().BoolVar(&nasFlag, "nas", false, "Mirror downloaded files to the NAS")
	archiveCmd.Flags().BoolVar(&overwriteFlag, "overwrite", false, "Overwrite existing files on the NAS (default: skip existing)")
	archiveCmd.Flags().BoolVar(&deleteLocalFlag, "delete-local", false, "Delete local files after successful NAS upload")
	archiveCmd.Flags().BoolVarP(&cleanFlag, "clean", "c", false, "Delete archived messages from the server after the run")

	testNASCmd.Flags().BoolVarP(&dryRunFlag, "dry-run", "n", false, "Only show what would be tested")

	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "Number of runs to show")
	historyCmd.Flags().BoolVar(&errorsFlag, "errors", false, "Show recorded item failures for each run")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := mail.Connect(cfg.Mail, logger)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	folders, err := client.ListFolders()
	if err != nil {
		return err
	}

	report.Folders(os.Stdout, folders)
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	opts := archive.Options{
		OutputDir:   cfg.OutputDir,
		Mirror:      nasFlag,
		Overwrite:   overwriteFlag,
		DeleteLocal: deleteLocalFlag,
		DryRun:      dryRunFlag,
		Clean:       cleanFlag,
	}
	if outputFlag != "" {
		opts.OutputDir = outputFlag
	}
	if sinceFlag != "" {
		expr, err := retention.Parse(sinceFlag)
		if err != nil {
			return err
		}
		opts.Since = expr
	}

	if opts.Clean {
		confirmed, err := confirmDeletion(opts.Since)
		if err != nil {
			return err
		}
		opts.DeletionConfirmed = confirmed
	}

	client, err := mail.Connect(cfg.Mail, logger)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	var store archive.StorageSession
	if opts.Mirror {
		if cfg.NAS == nil {
			return fmt.Errorf("NAS credentials not configured: set NAS_HOST, NAS_SHARE, NAS_USERNAME, NAS_PASSWORD")
		}
		nasClient, err := nas.Connect(cfg.NAS, logger)
		if err != nil {
			return err
		}
		defer nasClient.Close() //nolint:errcheck
		store = nasClient

		opts.RemotePath = cfg.NAS.FolderPath(cfg.Mail.AccountName(), archive.SanitizeName(folderFlag))
	}

	orch, err := archive.NewOrchestrator(client, store, opts, logger)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	outcome, err := orch.ArchiveFolder(folderFlag)
	if err != nil {
		return err
	}

	recordRun(cfg, logger, outcome, startedAt)
	report.Outcome(os.Stdout, outcome)
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	opts := archive.Options{
		OutputDir: cfg.OutputDir,
		DryRun:    dryRunFlag,
		Clean:     true,
	}
	if sinceFlag != "" {
		expr, err := retention.Parse(sinceFlag)
		if err != nil {
			return err
		}
		opts.Since = expr
	}

	confirmed, err := confirmDeletion(opts.Since)
	if err != nil {
		return err
	}
	opts.DeletionConfirmed = confirmed

	client, err := mail.Connect(cfg.Mail, logger)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	orch, err := archive.NewOrchestrator(client, nil, opts, logger)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	outcome, err := orch.CleanFolder(folderFlag)
	if err != nil {
		return err
	}

	recordRun(cfg, logger, outcome, startedAt)
	report.Outcome(os.Stdout, outcome)
	return nil
}

// confirmDeletion resolves the deletion gate before any work starts. The
// orchestrator itself never prompts.
func confirmDeletion(expr *retention.Expression) (bool, error) {
	if dryRunFlag || yesFlag {
		return true, nil
	}

	if expr != nil {
		fmt.Printf("This will permanently delete messages older than %s from %q.\n", expr, folderFlag)
	} else {
		fmt.Printf("WARNING: no --since given, this will permanently delete EVERY message in %q.\n", folderFlag)
	}
	fmt.Print("Type 'yes' to confirm: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != "yes" {
		fmt.Println("Deletion cancelled")
		return false, nil
	}
	return true, nil
}

// recordRun stores the outcome in the local run history. History failures
// are logged, never fatal to a run that already completed.
func recordRun(cfg *config.Config, logger *logrus.Logger, outcome *types.RunOutcome, startedAt time.Time) {
	db, err := history.Open(cfg.HistoryPath, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to open run history")
		return
	}
	defer db.Close() //nolint:errcheck

	store := history.NewStore(db, logger)
	if _, err := store.RecordRun(cfg.Mail.AccountName(), outcome, startedAt, time.Now()); err != nil {
		logger.WithError(err).Warn("Failed to record run")
	}
}

func runTestMail(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := mail.Connect(cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("mail connection test failed: %w", err)
	}
	defer client.Close() //nolint:errcheck

	result, err := client.Probe()
	if err != nil {
		return fmt.Errorf("mail connection test failed: %w", err)
	}

	fmt.Printf("Mail connection OK: %d capabilities, %d folders, INBOX has %d messages\n",
		result.Capabilities, result.Folders, result.InboxMessages)
	return nil
}

func runTestNAS(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.NAS == nil {
		return fmt.Errorf("NAS credentials not configured: set NAS_HOST, NAS_SHARE, NAS_USERNAME, NAS_PASSWORD")
	}

	if dryRunFlag {
		fmt.Printf("Would test SMB connection to \\\\%s\\%s (base path %s)\n",
			cfg.NAS.Host, cfg.NAS.Share, cfg.NAS.BasePath)
		return nil
	}

	client, err := nas.Connect(cfg.NAS, logger)
	if err != nil {
		return fmt.Errorf("NAS connection test failed: %w", err)
	}
	defer client.Close() //nolint:errcheck

	result, err := client.Probe()
	if err != nil {
		return fmt.Errorf("NAS connection test failed: %w", err)
	}

	fmt.Printf("NAS connection OK: %d entries in share root\n", result.RootEntries)
	if result.BasePathExists {
		fmt.Println("Base path exists")
	} else {
		fmt.Println("Base path does not exist yet (created on first upload)")
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := history.Open(cfg.HistoryPath, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	store := history.NewStore(db, logger)
	runs, err := store.ListRuns(limitFlag)
	if err != nil {
		return err
	}

	report.Runs(os.Stdout, runs)

	if errorsFlag {
		for _, r := range runs {
			if r.Outcome.Failed == 0 {
				continue
			}
			errs, err := store.RunErrors(r.ID)
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				report.RunFailures(os.Stdout, r, errs)
			}
		}
	}
	return nil
}
