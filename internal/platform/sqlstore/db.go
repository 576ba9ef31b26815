package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// Dialect selects the SQL flavour.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// sqliteTimeLayout is fixed width so that TEXT comparison orders correctly.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// pingTimeout bounds the connectivity check in Open.
const pingTimeout = 5 * time.Second

// DB is a database handle tagged with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// ParseDialect validates a configured driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(strings.ToLower(driver)) {
	case Postgres:
		return Postgres, nil
	case SQLite:
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Open connects to url with the given dialect and verifies connectivity.
// Connection failures are reported as domain.ErrUpstreamUnavailable.
func Open(ctx context.Context, dialect Dialect, url string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("pgx", url)
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case SQLite:
		db, err = sql.Open("sqlite", sqliteDSN(url))
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}
		// SQLite allows one writer; a single connection also makes the
		// claim UPDATE exclusive without row locks.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		logger.Error("database ping failed", "dialect", dialect, "error", err)
		return nil, MapError(fmt.Errorf("failed to connect to database: %w", err))
	}

	logger.Info("database connection established", "dialect", dialect)
	return &DB{DB: db, Dialect: dialect}, nil
}

// sqliteDSN accepts a bare path, a file: URI or a sqlite:// URL and adds
// the pragmas the stores rely on.
func sqliteDSN(url string) string {
	dsn := strings.TrimPrefix(url, "sqlite://")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

// ts encodes a time for the dialect: time.Time for PostgreSQL and a
// fixed-width UTC string for SQLite.
func (d Dialect) ts(t time.Time) any {
	if d == SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// tsPtr is ts for optional timestamps.
func (d Dialect) tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.ts(*t)
}

// claimLock is appended to the claim subquery.
func (d Dialect) claimLock() string {
	if d == Postgres {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

// scanTime reads a timestamp stored either natively or as TEXT.
type scanTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (s *scanTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		s.Time, s.Valid = time.Time{}, false
		return nil
	case time.Time:
		s.Time, s.Valid = x.UTC(), true
		return nil
	case string:
		return s.parse(x)
	case []byte:
		return s.parse(string(x))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", v)
	}
}

func (s *scanTime) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", v, err)
	}
	s.Time, s.Valid = t.UTC(), true
	return nil
}

func (s scanTime) ptr() *time.Time {
	if !s.Valid {
		return nil
	}
	t := s.Time
	return &t
}

// nullJSON passes empty JSON as SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
