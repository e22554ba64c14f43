package sqliteutil

import (
	"fmt"
	"strings"
)

// Pragmas lists the connection pragmas added to a SQLite DSN.
type Pragmas struct {
	WAL           bool
	BusyTimeoutMS int
	// Synchronous is one of OFF, NORMAL, FULL or EXTRA; empty leaves the driver default.
	Synchronous string
}

// DSN turns a file path into a modernc sqlite DSN carrying the given pragmas.
func DSN(path string, p Pragmas) string {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	return EnsurePragmas(dsn, p)
}

// EnsurePragmas appends SQLite pragmas to the DSN when missing.
// It is a no-op for in-memory databases.
func EnsurePragmas(dsn string, p Pragmas) string {
	if dsn == "" {
		return dsn
	}
	lower := strings.ToLower(dsn)
	if dsn == ":memory:" || strings.HasPrefix(lower, "file::memory:") {
		return dsn
	}
	if p.WAL && !strings.Contains(lower, "_pragma=journal_mode") {
		dsn = addPragma(dsn, "journal_mode(WAL)")
	}
	if p.BusyTimeoutMS > 0 && !strings.Contains(lower, "_pragma=busy_timeout") {
		dsn = addPragma(dsn, fmt.Sprintf("busy_timeout(%d)", p.BusyTimeoutMS))
	}
	if p.Synchronous != "" && !strings.Contains(lower, "_pragma=synchronous") {
		dsn = addPragma(dsn, fmt.Sprintf("synchronous(%s)", strings.ToUpper(p.Synchronous)))
	}
	return dsn
}

func addPragma(dsn, pragma string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=" + pragma
}
