package archive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-archive/pkg/types"
)

// RawFileName is the file holding the unmodified message bytes inside each
// message directory.
const RawFileName = "email.raw"

// noSubjectToken names message directories for messages without a subject.
const noSubjectToken = "no_subject"

// maxSubjectLen caps the sanitized subject fragment used in directory names
// so deeply nested archives stay under filesystem path-length limits.
const maxSubjectLen = 50

// Materializer converts fetched raw messages into on-disk message
// directories. It carries the run-scoped disambiguator state, so one
// instance must be used for the whole run and the same instance must see
// messages in the same order for a preview to name them identically to a
// real run.
type Materializer struct {
	seq    map[string]int
	logger *logrus.Logger
}

// NewMaterializer creates a materializer with fresh naming state.
func NewMaterializer(logger *logrus.Logger) *Materializer {
	return &Materializer{
		seq:    make(map[string]int),
		logger: logger,
	}
}

// DirName derives the directory name for one message:
// YYYYMMDD_HHMMSS_NNN_<subject>. NNN is a run-scoped 3-digit disambiguator
// per timestamp, so two messages sharing a second-resolution timestamp get
// distinct directories. Calling DirName consumes the next disambiguator for
// that timestamp; call it exactly once per message.
func (m *Materializer) DirName(handle types.MessageHandle) string {
	ts := handle.InternalDate.Format("20060102_150405")
	n := m.seq[ts]
	m.seq[ts]++

	subject := SanitizeName(handle.Subject)
	if subject == "" {
		subject = noSubjectToken
	}

	return fmt.Sprintf("%s_%03d_%s", ts, n, subject)
}

// AlreadyPresent reports whether the message directory already holds a raw
// file of the expected size, in which case the download is skipped. This is
// the only cross-run state the archiver consults.
func AlreadyPresent(dir string, size uint32) bool {
	info, err := os.Stat(filepath.Join(dir, RawFileName))
	if err != nil {
		return false
	}
	return size != 0 && info.Size() == int64(size)
}

// Materialize writes one fetched message into dir: the raw bytes as
// email.raw plus one file per attachment. The directory is
// all-or-nothing: any write failure removes it entirely so a partial
// message never survives on disk.
func (m *Materializer) Materialize(dir string, raw []byte) (*types.MaterializedMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, NewError(KindParse, "parse message", fmt.Errorf("failed to parse message: %w", err))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewError(KindWrite, "mkdir "+dir, fmt.Errorf("failed to create message directory: %w", err))
	}

	msg, err := m.writeParts(dir, raw, env)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			m.logger.WithError(rmErr).WithField("dir", dir).Warn("Failed to remove partial message directory")
		}
		return nil, err
	}
	return msg, nil
}

func (m *Materializer) writeParts(dir string, raw []byte, env *enmime.Envelope) (*types.MaterializedMessage, error) {
	rawPath := filepath.Join(dir, RawFileName)
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		return nil, NewError(KindWrite, "write "+rawPath, fmt.Errorf("failed to write raw message: %w", err))
	}

	msg := &types.MaterializedMessage{
		Dir:     dir,
		RawPath: rawPath,
		Subject: env.GetHeader("Subject"),
	}

	used := map[string]bool{RawFileName: true}
	for _, part := range attachmentParts(env) {
		name := uniqueName(SanitizeName(part.FileName), used)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, part.Content, 0o644); err != nil {
			return nil, NewError(KindWrite, "write "+path, fmt.Errorf("failed to write attachment: %w", err))
		}
		msg.Attachments = append(msg.Attachments, path)
	}

	return msg, nil
}

// attachmentParts collects the attachment and named inline parts of a
// message; unnamed inline parts (typical embedded bodies) are left inside
// the raw file only.
func attachmentParts(env *enmime.Envelope) []*enmime.Part {
	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines))
	parts = append(parts, env.Attachments...)
	for _, p := range env.Inlines {
		if p.FileName != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// uniqueName de-duplicates identical attachment names within one message by
// suffixing an index before the extension.
func uniqueName(name string, used map[string]bool) string {
	if name == "" {
		name = "attachment"
	}
	if !used[name] {
		used[name] = true
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

// SanitizeName makes a string safe for use as a single filesystem path
// segment: path separators and control characters are stripped, other
// non-alphanumeric runs collapse to single underscores, and the result is
// capped at a bounded length.
func SanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false

	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._-")
	runes := []rune(out)
	if len(runes) > maxSubjectLen {
		out = strings.Trim(string(runes[:maxSubjectLen]), "._-")
	}
	return out
}
