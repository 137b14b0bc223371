package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandon/mail-archive/pkg/types"
)

func TestOutcomeRendersFailures(t *testing.T) {
	var buf bytes.Buffer
	Outcome(&buf, &types.RunOutcome{
		Folder: "INBOX",
		Listed: 2,
		Failed: 1,
		Errors: []types.ItemError{
			{Folder: "INBOX", Item: "uid 9", Kind: "fetch", Reason: "io timeout"},
		},
	})

	out := buf.String()
	require.Contains(t, out, "1 item(s) failed")
	require.Contains(t, out, "uid 9")
	require.Contains(t, out, "io timeout")
}

func TestRunFailuresNamesTheRun(t *testing.T) {
	var buf bytes.Buffer
	r := types.RunRecord{
		ID:        "run-1",
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Outcome:   types.RunOutcome{Folder: "Sent"},
	}
	RunFailures(&buf, r, []types.ItemError{
		{Folder: "Sent", Item: "uid 3", Kind: "delete", Reason: "server said no"},
	})

	out := buf.String()
	require.Contains(t, out, "run-1")
	require.Contains(t, out, "Sent")
	require.Contains(t, out, "uid 3")
}
