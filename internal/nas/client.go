package nas

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hirochachacha/go-smb2"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-archive/internal/archive"
	"github.com/brandon/mail-archive/internal/config"
	"github.com/brandon/mail-archive/pkg/types"
)

// Client wraps one SMB session mounted on the configured share. Like the
// mail session it is single-owner and must be closed on every exit path.
type Client struct {
	config  *config.NASConfig
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
	logger  *logrus.Logger
}

// Connect dials the NAS over SMB, authenticates and mounts the share.
func Connect(cfg *config.NASConfig, logger *logrus.Logger) (*Client, error) {
	addr := net.JoinHostPort(cfg.Host, "445")

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, archive.NewError(archive.KindConnNetwork, "dial "+addr,
			fmt.Errorf("failed to connect to NAS: %w", err))
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.Username,
			Password: cfg.Password,
		},
	}

	session, err := dialer.Dial(conn)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, archive.NewError(archive.KindConnAuth, "smb session "+cfg.Host,
			fmt.Errorf("failed to establish SMB session: %w", err))
	}

	share, err := session.Mount(cfg.Share)
	if err != nil {
		session.Logoff() //nolint:errcheck
		conn.Close()     //nolint:errcheck
		return nil, archive.NewError(archive.KindConnAuth, "mount "+cfg.Share,
			fmt.Errorf("failed to mount share: %w", err))
	}

	logger.WithFields(logrus.Fields{
		"host":  cfg.Host,
		"share": cfg.Share,
	}).Info("Connected to NAS")

	return &Client{config: cfg, conn: conn, session: session, share: share, logger: logger}, nil
}

// Close unmounts the share and tears the session down.
func (c *Client) Close() error {
	var err error
	if c.share != nil {
		err = c.share.Umount()
		c.share = nil
	}
	if c.session != nil {
		if lerr := c.session.Logoff(); err == nil {
			err = lerr
		}
		c.session = nil
	}
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck
		c.conn = nil
	}
	return err
}

// remotePath converts a share-relative slash path to the backslash form SMB
// expects.
func remotePath(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", `\`)
}

// Exists reports whether a file or directory exists on the share.
func (c *Client) Exists(path string) (bool, error) {
	_, err := c.share.Stat(remotePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

// EnsureDir creates the directory and all missing parents. Already-present
// directories are not an error.
func (c *Client) EnsureDir(path string) error {
	if err := c.share.MkdirAll(remotePath(path), 0o755); err != nil && !os.IsExist(err) {
		return archive.NewError(archive.KindWrite, "mkdir "+path,
			fmt.Errorf("failed to create remote directory: %w", err))
	}
	return nil
}

// WriteFile writes data to path. With overwrite off an existing file is
// skipped without transferring any bytes. A write that fails partway is
// rolled back by removing the remote file, so the existence check never
// accepts a truncated file as present.
func (c *Client) WriteFile(path string, data []byte, overwrite bool) (types.WriteResult, error) {
	rpath := remotePath(path)

	if !overwrite {
		exists, err := c.Exists(path)
		if err != nil {
			return 0, archive.NewError(archive.KindWrite, "stat "+path, err)
		}
		if exists {
			return types.FileSkipped, nil
		}
	}

	f, err := c.share.Create(rpath)
	if err != nil {
		return 0, archive.NewError(archive.KindWrite, "create "+path,
			fmt.Errorf("failed to create remote file: %w", err))
	}

	n, err := f.Write(data)
	cerr := f.Close()
	if err == nil && n < len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	if err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := c.share.Remove(rpath); rmErr != nil {
			c.logger.WithError(rmErr).WithField("path", path).Warn("Failed to roll back partial write")
		}
		return 0, archive.NewError(archive.KindWrite, "write "+path,
			fmt.Errorf("failed to write remote file: %w", err))
	}

	return types.FileWritten, nil
}

// Probe exercises the connection for the test-nas command: share listing
// and base path visibility.
func (c *Client) Probe() (*ProbeResult, error) {
	entries, err := c.share.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to list share root: %w", err)
	}

	result := &ProbeResult{RootEntries: len(entries)}

	base := strings.Trim(c.config.BasePath, "/")
	if base != "" {
		exists, err := c.Exists(base)
		if err != nil {
			return nil, err
		}
		result.BasePathExists = exists
	}

	return result, nil
}

// ProbeResult summarizes a test-nas connectivity check.
type ProbeResult struct {
	RootEntries    int
	BasePathExists bool
}
