package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"outcode-retriever/models"
	"outcode-retriever/utils"
)

// Supported access log drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var tableNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AccessLog is the append-only record of per-outcode retrieval outcomes.
// Every table shares the same six-column schema and is created on first use.
type AccessLog struct {
	db     *sql.DB
	driver string
	logger *utils.Logger
	now    func() time.Time

	mu      sync.Mutex
	created map[string]bool
}

// OpenAccessLog opens the database behind the access log. For sqlite3 the
// directory of the database file is created if needed.
func OpenAccessLog(driver, dsn string, logger *utils.Logger) (*AccessLog, error) {
	switch driver {
	case DriverSQLite:
		if dir := sqliteDir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("access log: create dir: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("access log: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("access log: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("access log: ping failed after retries: %w", err)
	}

	return NewAccessLog(db, driver, logger), nil
}

// NewAccessLog wraps an open database handle.
func NewAccessLog(db *sql.DB, driver string, logger *utils.Logger) *AccessLog {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &AccessLog{
		db:      db,
		driver:  driver,
		logger:  logger,
		now:     time.Now,
		created: make(map[string]bool),
	}
}

func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

func validTable(table string) error {
	if !tableNameRegexp.MatchString(table) {
		return fmt.Errorf("access log: invalid table name %q", table)
	}
	return nil
}

func (a *AccessLog) schema(table string) string {
	ts := "TIMESTAMP"
	if a.driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dt            %s NOT NULL,
			outcode       INTEGER NOT NULL,
			property_type INTEGER NOT NULL,
			result        TEXT,
			success       INTEGER NOT NULL CHECK (success IN (0, 1)),
			num_retries   INTEGER
		)`, table, ts)
}

func (a *AccessLog) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		if a.driver == DriverPostgres {
			ph[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ph[i] = "?"
		}
	}
	return strings.Join(ph, ", ")
}

// ensureTable creates table once per AccessLog.
func (a *AccessLog) ensureTable(ctx context.Context, table string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.created[table] {
		return nil
	}
	if _, err := a.db.ExecContext(ctx, a.schema(table)); err != nil {
		return fmt.Errorf("access log: create table %s: %w", table, err)
	}
	a.created[table] = true
	a.logger.Debug("[access-log] Table %s ready", table)
	return nil
}

// Log appends one row to table. A zero timestamp is replaced by the
// current time.
func (a *AccessLog) Log(ctx context.Context, table string, e models.AccessEntry) error {
	if err := validTable(table); err != nil {
		return err
	}
	if err := a.ensureTable(ctx, table); err != nil {
		return err
	}

	dt := e.Timestamp
	if dt.IsZero() {
		dt = a.now()
	}
	success := 0
	if e.Success {
		success = 1
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (dt, outcode, property_type, result, success, num_retries) VALUES (%s)",
		table, a.placeholders(6))
	if _, err := a.db.ExecContext(ctx, query,
		dt, e.Outcode, int(e.PropertyType), e.Result, success, e.NumRetries); err != nil {
		return fmt.Errorf("access log: insert into %s: %w", table, err)
	}
	return nil
}

// Entries reads every row of table ordered by timestamp. Rows sharing a
// timestamp come back in no particular order. A table that was never written
// yields no entries.
func (a *AccessLog) Entries(ctx context.Context, table string) ([]models.AccessEntry, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	if err := a.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT dt, outcode, property_type, result, success, num_retries FROM %s ORDER BY dt", table))
	if err != nil {
		return nil, fmt.Errorf("access log: query %s: %w", table, err)
	}
	defer rows.Close()

	var entries []models.AccessEntry
	for rows.Next() {
		var (
			e       models.AccessEntry
			kind    int
			result  sql.NullString
			success int
			retries sql.NullInt64
		)
		if err := rows.Scan(&e.Timestamp, &e.Outcode, &kind, &result, &success, &retries); err != nil {
			return nil, fmt.Errorf("access log: scan row: %w", err)
		}
		e.PropertyType = models.ListingKind(kind)
		e.Result = result.String
		e.Success = success == 1
		e.NumRetries = int(retries.Int64)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Recreate drops table and creates it empty.
func (a *AccessLog) Recreate(ctx context.Context, table string) error {
	if err := validTable(table); err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.created, table)
	a.mu.Unlock()

	if _, err := a.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("access log: drop %s: %w", table, err)
	}
	a.logger.Warn("[access-log] Dropped table %s", table)
	return a.ensureTable(ctx, table)
}

// Table binds the log to one table name.
func (a *AccessLog) Table(name string) *TableLog {
	return &TableLog{log: a, table: name}
}

func (a *AccessLog) Close() error {
	return a.db.Close()
}

// TableLog writes to a single access log table.
type TableLog struct {
	log   *AccessLog
	table string
}

func (t *TableLog) Log(ctx context.Context, e models.AccessEntry) error {
	return t.log.Log(ctx, t.table, e)
}

func (t *TableLog) Entries(ctx context.Context) ([]models.AccessEntry, error) {
	return t.log.Entries(ctx, t.table)
}

func (t *TableLog) Name() string { return t.table }
