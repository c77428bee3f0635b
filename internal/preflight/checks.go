package preflight

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/sys/unix"

	"dubflow/internal/config"
	"dubflow/internal/queue"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minFree
// bytes available to unprivileged users.
func CheckFreeSpace(name, path string, minFree uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if free < minFree {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (below %s)", humanize.IBytes(minFree))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckQueueBackend verifies the configured queue backend is usable without
// opening it: the state directory holding SQLite and Badger files must be
// writable and a MySQL server must accept connections.
func CheckQueueBackend(ctx context.Context, cfg *config.Config) Result {
	const name = "Queue backend"
	backend := strings.ToLower(strings.TrimSpace(cfg.Queue.Backend))
	switch backend {
	case "", queue.BackendSQLite, queue.BackendBadger:
		if backend == "" {
			backend = queue.BackendSQLite
		}
		check := CheckDirectoryAccess(name, cfg.Paths.StateDir)
		check.Detail = backend + ": " + check.Detail
		return check
	case queue.BackendMemory:
		return Result{Name: name, Passed: true, Detail: "memory (jobs are lost on restart)"}
	case queue.BackendMySQL:
		return checkMySQL(ctx, name, cfg.Queue.DSN)
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unsupported backend %q", cfg.Queue.Backend)}
	}
}

func checkMySQL(ctx context.Context, name, dsn string) Result {
	parsed, err := mysql.ParseDSN(strings.TrimSpace(dsn))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("mysql: invalid dsn (%v)", err)}
	}
	connector, err := mysql.NewConnector(parsed)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("mysql: %v", err)}
	}
	db := sql.OpenDB(connector)
	defer db.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(checkCtx); err != nil {
		return Result{Name: name, Detail: "mysql " + parsed.Addr + ": " + summarizeDialError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "mysql " + parsed.Addr + " reachable"}
}

func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out"
	}
	return err.Error()
}
