package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask"
	"github.com/viant/bitcask/config"
	"github.com/viant/bitcask/export"
	"github.com/viant/bitcask/snapshot"
)

var (
	errUsage    = errors.New("usage")
	errNotFound = errors.New("key not found")
)

// storeFlags are shared by every command.
type storeFlags struct {
	config      *string
	dir         *string
	base        *string
	segmentSize *int64
	sync        *bool
	logLevel    *string
}

func newFlags(name string) (*flag.FlagSet, *storeFlags) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	sf := &storeFlags{
		config:      flags.String("config", "", "config yaml (optional)"),
		dir:         flags.String("dir", "", "store directory (overrides config)"),
		base:        flags.String("base", "", "segment base name (overrides config)"),
		segmentSize: flags.Int64("segment-size", 0, "segment rotation size in bytes (overrides config)"),
		sync:        flags.Bool("sync", false, "fsync after every write"),
		logLevel:    flags.String("log-level", "", "log level (overrides config)"),
	}
	return flags, sf
}

func (f *storeFlags) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(*f.config)
	if err != nil {
		return nil, nil, err
	}
	if *f.dir != "" {
		if cfg.Store.Dir, err = config.ExpandUserPath(*f.dir); err != nil {
			return nil, nil, err
		}
	}
	if *f.base != "" {
		cfg.Store.BaseName = *f.base
	}
	if *f.segmentSize > 0 {
		cfg.Store.SegmentSize = *f.segmentSize
	}
	if *f.sync {
		cfg.Store.SyncWrites = true
	}
	if *f.logLevel != "" {
		cfg.Log.Level = *f.logLevel
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (f *storeFlags) open() (*bitcask.DB, *config.Config, error) {
	cfg, logger, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	db, err := bitcask.Open(cfg.Store.Dir, cfg.Options(logger)...)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

func parse(flags *flag.FlagSet, args []string, nargs int) error {
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if nargs >= 0 && flags.NArg() != nargs {
		return errUsage
	}
	return nil
}

func getCmd(args []string, stdout io.Writer) error {
	flags, sf := newFlags("get")
	if err := parse(flags, args, 1); err != nil {
		return err
	}
	db, _, err := sf.open()
	if err != nil {
		return err
	}
	defer db.Close()
	key := flags.Arg(0)
	value, ok, err := db.Get([]byte(key))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%q: %w", key, errNotFound)
	}
	_, err = stdout.Write(value)
	return err
}

func setCmd(args []string, stdin io.Reader) error {
	flags, sf := newFlags("set")
	file := flags.String("file", "", "read the value from a file; - reads stdin")
	if err := parse(flags, args, -1); err != nil {
		return err
	}
	var value []byte
	switch {
	case flags.NArg() == 2 && *file == "":
		value = []byte(flags.Arg(1))
	case flags.NArg() == 1 && *file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		value = data
	case flags.NArg() == 1 && *file != "":
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		value = data
	default:
		return errUsage
	}
	db, _, err := sf.open()
	if err != nil {
		return err
	}
	if err := db.Set([]byte(flags.Arg(0)), value); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

func deleteCmd(args []string) error {
	flags, sf := newFlags("delete")
	if err := parse(flags, args, 1); err != nil {
		return err
	}
	db, _, err := sf.open()
	if err != nil {
		return err
	}
	if err := db.Delete([]byte(flags.Arg(0))); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

func keysCmd(args []string, stdout io.Writer) error {
	flags, sf := newFlags("keys")
	prefix := flags.String("prefix", "", "only list keys with this prefix")
	if err := parse(flags, args, 0); err != nil {
		return err
	}
	db, _, err := sf.open()
	if err != nil {
		return err
	}
	defer db.Close()
	var writeErr error
	err = db.Ascend(func(key []byte) bool {
		if !bytes.HasPrefix(key, []byte(*prefix)) {
			return true
		}
		_, writeErr = fmt.Fprintf(stdout, "%s\n", key)
		return writeErr == nil
	})
	if err != nil {
		return err
	}
	return writeErr
}

func mergeCmd(args []string, stdout io.Writer) error {
	flags, sf := newFlags("merge")
	if err := parse(flags, args, 0); err != nil {
		return err
	}
	db, _, err := sf.open()
	if err != nil {
		return err
	}
	defer db.Close()
	before, err := db.Stats()
	if err != nil {
		return err
	}
	if err := db.Merge(); err != nil {
		return err
	}
	after, err := db.Stats()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "merged %d keys: %d -> %d bytes, %d -> %d segments\n",
		after.Keys, before.DiskSize, after.DiskSize, before.Segments, after.Segments)
	return err
}

func statsCmd(args []string, stdout io.Writer) error {
	flags, sf := newFlags("stats")
	withDigest := flags.Bool("digest", false, "include a content digest")
	if err := parse(flags, args, 0); err != nil {
		return err
	}
	db, _, err := sf.open()
	if err != nil {
		return err
	}
	defer db.Close()
	stats, err := db.Stats()
	if err != nil {
		return err
	}
	out := struct {
		bitcask.Stats
		Dir    string `json:"dir"`
		Digest string `json:"digest,omitempty"`
	}{Stats: stats, Dir: db.Dir()}
	if *withDigest {
		digest, err := db.Digest()
		if err != nil {
			return err
		}
		out.Digest = fmt.Sprintf("%016x", digest)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func snapshotCmd(args []string, stdout io.Writer) error {
	flags, sf := newFlags("snapshot")
	URL := flags.String("url", "", "destination file path or afs URL (overrides config)")
	if err := parse(flags, args, 0); err != nil {
		return err
	}
	db, cfg, err := sf.open()
	if err != nil {
		return err
	}
	defer db.Close()
	dest, err := pick(*URL, cfg.Snapshot.URL)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	trailer, err := snapshot.NewStorage().Upload(ctx, dest, db, db.Dir())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "snapshot %s: %d keys, digest %016x\n", dest, trailer.Count, trailer.Digest)
	return err
}

func restoreCmd(args []string, stdout io.Writer) error {
	flags, sf := newFlags("restore")
	URL := flags.String("url", "", "source file path or afs URL (overrides config)")
	if err := parse(flags, args, 0); err != nil {
		return err
	}
	db, cfg, err := sf.open()
	if err != nil {
		return err
	}
	defer db.Close()
	src, err := pick(*URL, cfg.Snapshot.URL)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	header, trailer, err := snapshot.NewStorage().Download(ctx, src, db)
	if err != nil {
		return err
	}
	if err := db.Sync(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "restored %d keys from %s (taken %s from %s)\n",
		trailer.Count, src, header.Created.Format("2006-01-02T15:04:05Z"), header.Source)
	return err
}

func exportCmd(args []string, stdout io.Writer) error {
	flags, sf := newFlags("export")
	dbPath := flags.String("db", "", "SQLite database path (overrides config)")
	table := flags.String("table", "", "table name (overrides config)")
	if err := parse(flags, args, 0); err != nil {
		return err
	}
	db, cfg, err := sf.open()
	if err != nil {
		return err
	}
	defer db.Close()
	path, err := pick(*dbPath, cfg.Export.Path)
	if err != nil {
		return err
	}
	tableName := cfg.Export.Table
	if *table != "" {
		tableName = *table
	}
	exporter, err := export.Open(path, export.Options{Table: tableName, BatchSize: cfg.Export.BatchSize})
	if err != nil {
		return err
	}
	defer exporter.Close()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	result, err := exporter.Export(ctx, db, db.Dir())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "exported %d rows (%d bytes) to %s:%s in %s\n",
		result.Rows, result.Bytes, path, result.Table, result.Elapsed)
	return err
}

// pick returns the flag value, falling back to the configured one.
func pick(flagValue, configured string) (string, error) {
	if flagValue != "" {
		return config.ExpandUserPath(flagValue)
	}
	if configured != "" {
		return configured, nil
	}
	return "", errUsage
}
