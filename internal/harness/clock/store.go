package clock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ha-testbed/harness/internal/domain"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AbsoluteTimeLayout is the textual layout of an absolute clock record, matching the
// format understood by the time-interception agents inside the service containers.
const AbsoluteTimeLayout = "2006-01-02 15:04:05"

// Record is the externally persisted representation of the current simulated time:
// either an absolute instant or a relative offset from real time.
type Record struct {
	// Absolute is true when the record pins simulated time to a specific instant.
	Absolute bool

	// Instant holds the pinned instant when Absolute is true.
	Instant time.Time

	// Offset holds the divergence from real time when Absolute is false.
	Offset time.Duration
}

// Resolve returns the simulated instant the record denotes, given real time 'now'.
func (r Record) Resolve(now time.Time) time.Time {
	if r.Absolute {
		return r.Instant
	}

	return now.Add(r.Offset).Truncate(time.Second)
}

// Store owns the clock store file: the single shared value through which the
// controller publishes simulated time to the service containers. The Store is the
// only writer; the time-interception agents inside the containers are readers that
// may poll the file at arbitrary moments. Every write goes through a temp file
// followed by an atomic rename so a reader never observes a torn value.
type Store struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger

	path     string
	location *time.Location
}

func NewStore(path string, location *time.Location, atom *zap.AtomicLevel) *Store {
	store := &Store{
		path:     path,
		location: location,
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(colorable.NewColorableStdout()), atom)
	store.logger = zap.New(core, zap.Development())
	store.sugaredLogger = store.logger.Sugar()

	return store
}

// Path returns the canonical path of the clock store file.
func (s *Store) Path() string {
	return s.path
}

// WriteInstant publishes an absolute simulated instant.
func (s *Store) WriteInstant(t time.Time) error {
	return s.write(fmt.Sprintf("@%s", t.In(s.location).Format(AbsoluteTimeLayout)))
}

// WriteOffset publishes a relative offset from real time, in whole seconds.
func (s *Store) WriteOffset(offset time.Duration) error {
	seconds := int64(offset.Truncate(time.Second) / time.Second)
	return s.write(fmt.Sprintf("%+d", seconds))
}

// Reset publishes the zero offset marker, signifying no divergence from real time.
// This is the initial value of every session.
func (s *Store) Reset() error {
	return s.write("+0")
}

// Read parses the current contents of the clock store file.
func (s *Store) Read() (Record, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read clock store file \"%s\": %w", s.path, err)
	}

	return s.parse(strings.TrimSpace(string(content)))
}

func (s *Store) parse(content string) (Record, error) {
	if content == "" {
		return Record{}, fmt.Errorf("clock store file \"%s\" is empty", s.path)
	}

	switch content[0] {
	case '@':
		instant, err := time.ParseInLocation(AbsoluteTimeLayout, content[1:], s.location)
		if err != nil {
			return Record{}, fmt.Errorf("failed to parse absolute clock record \"%s\": %w", content, err)
		}

		return Record{Absolute: true, Instant: instant}, nil
	case '+', '-':
		seconds, err := strconv.ParseInt(content, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("failed to parse relative clock record \"%s\": %w", content, err)
		}

		return Record{Offset: time.Duration(seconds) * time.Second}, nil
	default:
		return Record{}, fmt.Errorf("unrecognized clock record \"%s\"", content)
	}
}

// write publishes new content to the canonical path. The content is first written
// in full to a temp file in the same directory, and then renamed over the canonical
// path. Renames are atomic at the filesystem level, so concurrent readers observe
// either the previous record or the new one, never a mix.
func (s *Store) write(content string) error {
	dir := filepath.Dir(s.path)

	tempFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file in \"%s\": %s", domain.ErrStoreWrite, dir, err)
	}
	tempPath := tempFile.Name()

	if _, err = tempFile.WriteString(content); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: failed to write \"%s\" to temp file: %s", domain.ErrStoreWrite, content, err)
	}

	if err = tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: failed to close temp file \"%s\": %s", domain.ErrStoreWrite, tempPath, err)
	}

	// Readers inside the containers run as a different user.
	if err = os.Chmod(tempPath, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: failed to chmod temp file \"%s\": %s", domain.ErrStoreWrite, tempPath, err)
	}

	if err = os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: failed to rename \"%s\" over \"%s\": %s", domain.ErrStoreWrite, tempPath, s.path, err)
	}

	s.logger.Debug("Wrote clock store record.", zap.String("content", content), zap.String("path", s.path))
	return nil
}
