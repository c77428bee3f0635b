package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

//go:embed schema_mysql.sql
var mysqlSchemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to clear their queue database after schema changes.
const schemaVersion = 1

const (
	mysqlDuplicateEntry    = 1062
	sqliteConstraintPK     = 1555
	sqliteConstraintUnique = 2067
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	schema      string
	tableExists string
	// claimLock is appended to the claim SELECT.
	claimLock string
}

var (
	sqliteDialect = dialect{
		name:        BackendSQLite,
		schema:      sqliteSchemaSQL,
		tableExists: "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	}
	mysqlDialect = dialect{
		name:        BackendMySQL,
		schema:      mysqlSchemaSQL,
		tableExists: "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'schema_version'",
		claimLock:   " FOR UPDATE SKIP LOCKED",
	}
)

func (d dialect) isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() {
		case sqliteConstraintPK, sqliteConstraintUnique:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// statements splits an embedded schema into individual statements. The MySQL
// driver rejects multi-statement Exec without multiStatements=true.
func (d dialect) statements() []string {
	parts := strings.Split(d.schema, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	var tableExists int
	if err := s.db.QueryRowContext(ctx, s.dialect.tableExists).Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (stop dubflowd and delete the queue database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQLStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range s.dialect.statements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
