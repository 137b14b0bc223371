package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresCredentials(t *testing.T) {
	t.Setenv("MAIL_EMAIL", "")
	t.Setenv("MAIL_PASSWORD", "")

	_, err := LoadConfig("gmx", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "MAIL_EMAIL")
}

func TestLoadConfigBuiltinProvider(t *testing.T) {
	t.Setenv("MAIL_EMAIL", "alice@example.com")
	t.Setenv("MAIL_PASSWORD", "secret")

	// A nonexistent explicit path behaves like no config file at all, so
	// the builtin registry applies and the test stays hermetic.
	cfg, err := LoadConfig("gmail", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "imap.gmail.com", cfg.Mail.IMAPHost)
	require.Equal(t, 993, cfg.Mail.IMAPPort)
	require.Equal(t, SecurityTLS, cfg.Mail.Security)
	require.NoError(t, cfg.Validate())
}

func TestLoadProviderFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	content := `
default: work
providers:
  work:
    name: Work Mail
    imap_host: mail.work.example
    imap_port: 143
    ssl: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.Equal(t, "work", DefaultProvider(path))

	p, err := LoadProvider("work", path)
	require.NoError(t, err)
	require.Equal(t, "mail.work.example", p.IMAPHost)
	require.Equal(t, 143, p.IMAPPort)
	require.Equal(t, SecurityNone, p.Security())

	_, err = LoadProvider("personal", path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "work")
}

func TestCustomProviderFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  custom: {}\n"), 0o600))

	t.Setenv("IMAP_HOST", "imap.internal.example")
	t.Setenv("IMAP_PORT", "1993")
	t.Setenv("IMAP_SSL", "true")

	p, err := LoadProvider("custom", path)
	require.NoError(t, err)
	require.Equal(t, "imap.internal.example", p.IMAPHost)
	require.Equal(t, 1993, p.IMAPPort)
	require.Equal(t, SecurityTLS, p.Security())
}

func TestAccountName(t *testing.T) {
	c := &MailConfig{Email: "alice@example.com"}
	require.Equal(t, "alice", c.AccountName())

	c = &MailConfig{Email: "no-domain"}
	require.Equal(t, "no-domain", c.AccountName())
}

func TestNASFolderPath(t *testing.T) {
	c := &NASConfig{BasePath: "/mail-archive/"}
	require.Equal(t, "mail-archive/alice/INBOX", c.FolderPath("alice", "INBOX"))
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{
		Mail:        &MailConfig{IMAPHost: "h", IMAPPort: 0, Security: SecurityTLS},
		OutputDir:   "out",
		HistoryPath: "h.db",
	}
	require.Error(t, cfg.Validate())

	cfg.Mail.IMAPPort = 993
	require.NoError(t, cfg.Validate())

	cfg.Mail.Security = "weird"
	require.Error(t, cfg.Validate())
}
