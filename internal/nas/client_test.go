package nas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemotePath(t *testing.T) {
	require.Equal(t, `mail-archive\alice\INBOX`, remotePath("/mail-archive/alice/INBOX"))
	require.Equal(t, `a\b`, remotePath("a/b/"))
	require.Equal(t, "file.txt", remotePath("file.txt"))
	require.Equal(t, "", remotePath("/"))
}
