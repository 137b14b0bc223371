package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Security selects how the IMAP connection is protected.
type Security string

const (
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
	SecurityNone     Security = "none"
)

// MailConfig is the resolved IMAP connection profile. It is immutable once
// loaded and passed by reference into the transport adapter.
type MailConfig struct {
	Email    string
	Password string
	Provider string

	IMAPHost string
	IMAPPort int
	Security Security
}

// AccountName returns the account identifier used in archive paths: the
// local part of the email address.
func (c *MailConfig) AccountName() string {
	if i := strings.Index(c.Email, "@"); i > 0 {
		return c.Email[:i]
	}
	return c.Email
}

// Addr returns the host:port dial address for the IMAP server.
func (c *MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.IMAPHost, c.IMAPPort)
}

// NASConfig is the resolved SMB connection profile for the mirror target.
type NASConfig struct {
	Host     string
	Share    string
	Username string
	Password string
	BasePath string
}

// FolderPath builds the share-relative path for one mail folder,
// <base>/<account>/<folder>.
func (c *NASConfig) FolderPath(account, folder string) string {
	base := strings.Trim(c.BasePath, "/")
	return fmt.Sprintf("%s/%s/%s", base, account, folder)
}

// Config holds the full application configuration.
type Config struct {
	Mail        *MailConfig
	NAS         *NASConfig
	OutputDir   string
	HistoryPath string
	LogLevel    string
}

// LoadConfig loads configuration from environment variables. providerName
// and providersPath override the MAIL_PROVIDER env and the provider config
// file search; both may be empty.
func LoadConfig(providerName, providersPath string) (*Config, error) {
	mail, err := loadMailConfig(providerName, providersPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		Mail:        mail,
		NAS:         loadNASConfig(),
		OutputDir:   getEnv("ARCHIVE_OUTPUT", "./downloads"),
		HistoryPath: getEnv("ARCHIVE_HISTORY_PATH", "./archive_history.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}, nil
}

// loadMailConfig resolves credentials from the environment and the IMAP
// endpoint from the provider registry.
func loadMailConfig(providerName, providersPath string) (*MailConfig, error) {
	email := getEnv("MAIL_EMAIL", "")
	password := getEnv("MAIL_PASSWORD", "")
	if email == "" || password == "" {
		return nil, fmt.Errorf("MAIL_EMAIL and MAIL_PASSWORD are required")
	}

	if providerName == "" {
		providerName = getEnv("MAIL_PROVIDER", "")
	}
	if providerName == "" {
		providerName = DefaultProvider(providersPath)
	}

	provider, err := LoadProvider(providerName, providersPath)
	if err != nil {
		return nil, err
	}

	return &MailConfig{
		Email:    email,
		Password: password,
		Provider: providerName,
		IMAPHost: provider.IMAPHost,
		IMAPPort: provider.IMAPPort,
		Security: provider.Security(),
	}, nil
}

// loadNASConfig returns nil when the NAS credentials are not configured;
// NAS mirroring is optional.
func loadNASConfig() *NASConfig {
	host := getEnv("NAS_HOST", "")
	share := getEnv("NAS_SHARE", "")
	username := getEnv("NAS_USERNAME", "")
	password := getEnv("NAS_PASSWORD", "")

	if host == "" || share == "" || username == "" || password == "" {
		return nil
	}

	return &NASConfig{
		Host:     host,
		Share:    share,
		Username: username,
		Password: password,
		BasePath: getEnv("NAS_PATH", "/mail-archive"),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Mail == nil {
		return fmt.Errorf("mail configuration is required")
	}
	if c.Mail.IMAPHost == "" {
		return fmt.Errorf("IMAP host is required")
	}
	if c.Mail.IMAPPort < 1 || c.Mail.IMAPPort > 65535 {
		return fmt.Errorf("invalid IMAP port %d", c.Mail.IMAPPort)
	}
	switch c.Mail.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return fmt.Errorf("invalid security mode %q", c.Mail.Security)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.HistoryPath == "" {
		return fmt.Errorf("ARCHIVE_HISTORY_PATH is required")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
