package mail

import (
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-archive/internal/archive"
	"github.com/brandon/mail-archive/internal/config"
	"github.com/brandon/mail-archive/pkg/types"
)

// Client wraps one IMAP session. A session is single-owner: it must not be
// shared across goroutines, and the message handles it returns are valid
// only while it stays open.
type Client struct {
	config *config.MailConfig
	client *client.Client
	logger *logrus.Logger
}

// Connect dials the IMAP server per the profile's security mode and logs in.
// Failures are classified as network, TLS or auth connection errors.
func Connect(cfg *config.MailConfig, logger *logrus.Logger) (*Client, error) {
	addr := cfg.Addr()

	var cl *client.Client
	var err error

	tlsConfig := &tls.Config{
		ServerName: cfg.IMAPHost,
		MinVersion: tls.VersionTLS12,
	}

	switch cfg.Security {
	case config.SecurityTLS:
		cl, err = client.DialTLS(addr, tlsConfig)
	case config.SecurityStartTLS:
		cl, err = client.Dial(addr)
		if err == nil {
			if err = cl.StartTLS(tlsConfig); err != nil {
				cl.Logout() //nolint:errcheck
				return nil, archive.NewError(archive.KindConnTLS, "starttls "+addr,
					fmt.Errorf("failed to negotiate STARTTLS: %w", err))
			}
		}
	default:
		cl, err = client.Dial(addr)
	}
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	if err := cl.Login(cfg.Email, cfg.Password); err != nil {
		logger.WithError(err).Error("Failed to login to IMAP server")
		cl.Logout() //nolint:errcheck
		return nil, archive.NewError(archive.KindConnAuth, "login "+addr,
			fmt.Errorf("failed to login to IMAP server: %w", err))
	}

	logger.WithField("host", cfg.IMAPHost).Info("Connected to IMAP server")
	return &Client{config: cfg, client: cl, logger: logger}, nil
}

// classifyDialError separates socket-level faults from TLS negotiation
// failures.
func classifyDialError(addr string, err error) error {
	if _, ok := err.(net.Error); ok {
		return archive.NewError(archive.KindConnNetwork, "dial "+addr,
			fmt.Errorf("failed to connect to IMAP server: %w", err))
	}
	return archive.NewError(archive.KindConnTLS, "dial "+addr,
		fmt.Errorf("failed to establish TLS session: %w", err))
}

// Close logs out and releases the server-side connection slot.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Logout()
	c.client = nil
	return err
}

// ListFolders lists all folders with their message and unseen counts. An
// empty mailbox yields an empty slice, not an error. Folders whose STATUS
// fails are still listed with zero counts.
func (c *Client) ListFolders() ([]types.FolderSummary, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		names = append(names, m.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	folders := make([]types.FolderSummary, 0, len(names))
	for _, name := range names {
		summary := types.FolderSummary{Name: name}
		status, err := c.client.Status(name, []imap.StatusItem{imap.StatusMessages, imap.StatusUnseen})
		if err != nil {
			c.logger.WithError(err).WithField("folder", name).Warn("Failed to get folder status")
		} else {
			summary.MessageCount = status.Messages
			summary.UnseenCount = status.Unseen
		}
		folders = append(folders, summary)
	}

	return folders, nil
}

// ListMessages selects a folder and returns handles for its messages,
// ordered by UID ascending. A non-nil before limits the listing to messages
// with an internal date earlier than that instant (server-side BEFORE,
// date granularity); the clean-only path uses it to avoid fetching bodies
// it will never materialize.
func (c *Client) ListMessages(folderName string, before *time.Time) ([]types.MessageHandle, error) {
	mbox, err := c.client.Select(folderName, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folderName, err)
	}
	if mbox.Messages == 0 {
		return []types.MessageHandle{}, nil
	}

	criteria := imap.NewSearchCriteria()
	if before != nil {
		criteria.Before = *before
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search folder %s: %w", folderName, err)
	}
	if len(uids) == 0 {
		return []types.MessageHandle{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchRFC822Size, imap.FetchUid}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var handles []types.MessageHandle
	for msg := range messages {
		handle := types.MessageHandle{
			UID:          msg.Uid,
			InternalDate: msg.InternalDate,
			Size:         msg.Size,
		}
		if msg.Envelope != nil {
			handle.Subject = decodeHeader(msg.Envelope.Subject)
			if handle.InternalDate.IsZero() {
				handle.InternalDate = msg.Envelope.Date
			}
		}
		handles = append(handles, handle)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message metadata: %w", err)
	}

	sort.Slice(handles, func(i, j int) bool { return handles[i].UID < handles[j].UID })
	return handles, nil
}

// FetchRaw downloads the full raw message for one handle. The folder must
// already be selected by a prior ListMessages on this session. Network
// faults are retryable; a response without a body section is not.
func (c *Client) FetchRaw(uid uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var body []byte
	for msg := range messages {
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		b, err := io.ReadAll(literal)
		if err != nil {
			c.logger.WithError(err).WithField("uid", uid).Error("Error reading message literal")
			continue
		}
		body = b
	}

	if err := <-done; err != nil {
		return nil, archive.NewRetryableError(archive.KindFetch, fmt.Sprintf("fetch uid %d", uid),
			fmt.Errorf("failed to fetch message: %w", err))
	}
	if len(body) == 0 {
		return nil, archive.NewError(archive.KindFetch, fmt.Sprintf("fetch uid %d", uid),
			fmt.Errorf("server returned no body section"))
	}

	return body, nil
}

// DeleteMessages permanently removes the given messages: it flags them
// \Deleted and expunges the folder, so the retention contract "these
// messages are gone" holds rather than a soft flag the server may keep.
func (c *Client) DeleteMessages(folderName string, uids []uint32) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}

	if _, err := c.client.Select(folderName, false); err != nil {
		return 0, archive.NewError(archive.KindDelete, "select "+folderName,
			fmt.Errorf("failed to select folder: %w", err))
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := c.client.UidStore(seqSet, item, flags, nil); err != nil {
		return 0, archive.NewError(archive.KindDelete, "store "+folderName,
			fmt.Errorf("failed to flag messages deleted: %w", err))
	}

	if err := c.client.Expunge(nil); err != nil {
		return 0, archive.NewError(archive.KindDelete, "expunge "+folderName,
			fmt.Errorf("failed to expunge folder: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"folder": folderName,
		"count":  len(uids),
	}).Info("Deleted messages")
	return len(uids), nil
}

// Probe exercises the connection for the test-mail command: capabilities,
// folder listing and INBOX access.
func (c *Client) Probe() (*ProbeResult, error) {
	caps, err := c.client.Capability()
	if err != nil {
		return nil, fmt.Errorf("failed to query capabilities: %w", err)
	}

	folders, err := c.ListFolders()
	if err != nil {
		return nil, err
	}

	inbox, err := c.client.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return &ProbeResult{
		Capabilities:  len(caps),
		Folders:       len(folders),
		InboxMessages: inbox.Messages,
	}, nil
}

// ProbeResult summarizes a test-mail connectivity check.
type ProbeResult struct {
	Capabilities  int
	Folders       int
	InboxMessages uint32
}

// decodeHeader decodes RFC 2047 encoded words in a header value, falling
// back to the raw value on malformed input.
func decodeHeader(value string) string {
	dec := &mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
