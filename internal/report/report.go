package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/brandon/mail-archive/pkg/types"
)

// Folders renders a folder listing as a table.
func Folders(w io.Writer, folders []types.FolderSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Folder", "Messages", "Unseen"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, f := range folders {
		table.Append([]string{
			strconv.Itoa(i + 1),
			f.Name,
			strconv.FormatUint(uint64(f.MessageCount), 10),
			strconv.FormatUint(uint64(f.UnseenCount), 10),
		})
	}
	table.Render()
}

// Outcome renders one run outcome, including any per-item failures.
func Outcome(w io.Writer, outcome *types.RunOutcome) {
	if outcome.DryRun {
		fmt.Fprintln(w, "DRY RUN - no changes were made")
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Folder", "Listed", "Downloaded", "Uploaded", "Skipped", "Deleted local", "Deleted remote", "Failed"})
	table.Append([]string{
		outcome.Folder,
		strconv.Itoa(outcome.Listed),
		strconv.Itoa(outcome.Downloaded),
		strconv.Itoa(outcome.Uploaded),
		strconv.Itoa(outcome.SkippedExisting),
		strconv.Itoa(outcome.DeletedLocal),
		strconv.Itoa(outcome.DeletedRemote),
		strconv.Itoa(outcome.Failed),
	})
	table.Render()

	if len(outcome.Errors) > 0 {
		fmt.Fprintf(w, "%d item(s) failed:\n", len(outcome.Errors))
		itemErrors(w, outcome.Errors)
	}
}

// RunFailures renders the item failures recorded for one past run.
func RunFailures(w io.Writer, r types.RunRecord, errs []types.ItemError) {
	fmt.Fprintf(w, "Failures for run %s (%s, %s):\n",
		r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Outcome.Folder)
	itemErrors(w, errs)
}

func itemErrors(w io.Writer, errs []types.ItemError) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Folder", "Item", "Kind", "Reason"})
	for _, e := range errs {
		table.Append([]string{e.Folder, e.Item, e.Kind, e.Reason})
	}
	table.Render()
}

// Runs renders past runs from the history store.
func Runs(w io.Writer, runs []types.RunRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Started", "Account", "Folder", "Listed", "Downloaded", "Uploaded", "Deleted remote", "Failed", "Dry run"})

	for _, r := range runs {
		table.Append([]string{
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Account,
			r.Outcome.Folder,
			strconv.Itoa(r.Outcome.Listed),
			strconv.Itoa(r.Outcome.Downloaded),
			strconv.Itoa(r.Outcome.Uploaded),
			strconv.Itoa(r.Outcome.DeletedRemote),
			strconv.Itoa(r.Outcome.Failed),
			strconv.FormatBool(r.Outcome.DryRun),
		})
	}
	table.Render()
}
