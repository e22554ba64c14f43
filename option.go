package bitcask

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask/datalog"
)

// DefaultBaseName is the segment file prefix used when none is configured.
const DefaultBaseName = "log"

type options struct {
	segmentSize int64
	baseName    string
	syncWrites  bool
	logger      *logrus.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		segmentSize: datalog.DefaultSegmentSize,
		baseName:    DefaultBaseName,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.segmentSize <= 0 {
		o.segmentSize = datalog.DefaultSegmentSize
	}
	if o.baseName == "" {
		o.baseName = DefaultBaseName
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	return o
}

// validate rejects base names holding a dot or a path separator. A dotted
// name such as "log.merge" would share files with the merge set of "log".
func (o *options) validate() error {
	if strings.ContainsAny(o.baseName, `./\`) {
		return fmt.Errorf("%w: %q", ErrInvalidBaseName, o.baseName)
	}
	return nil
}

// Option configures a DB.
type Option func(o *options)

// WithSegmentSize sets the size in bytes past which the active segment is
// sealed and a new one started.
func WithSegmentSize(bytes int64) Option {
	return func(o *options) { o.segmentSize = bytes }
}

// WithBaseName sets the segment file prefix. Names holding a dot or a path
// separator are rejected by Open.
func WithBaseName(name string) Option {
	return func(o *options) { o.baseName = name }
}

// WithSyncWrites fsyncs the active segment after every write.
func WithSyncWrites(enabled bool) Option {
	return func(o *options) { o.syncWrites = enabled }
}

// WithLogger sets the logger; logrus.StandardLogger is used otherwise.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}
