package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoHandle = errors.New("no database handle for replica")

// Dialect selects the replication lag query.
type Dialect string

const (
	DialectUnknown  Dialect = ""
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DialectForDriver maps a database/sql driver name to a dialect.
func DialectForDriver(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "mysql":
		return DialectMySQL
	case "pgx", "pgx/v5", "postgres", "postgresql":
		return DialectPostgres
	default:
		return DialectUnknown
	}
}

const (
	mysqlReplicaStatus = "SHOW REPLICA STATUS"
	mysqlSlaveStatus   = "SHOW SLAVE STATUS"
	postgresLagQuery   = "SELECT EXTRACT(EPOCH FROM now() - pg_last_xact_replay_timestamp())"
)

var errLagNotReported = errors.New("replica does not report its lag")

type sqlTarget struct {
	db      *sql.DB
	dialect Dialect
}

// SQLProber probes replicas through database/sql handles. Liveness is a
// ping; the lag is read with a dialect specific query on the same
// connection.
type SQLProber struct {
	mu      sync.RWMutex
	targets map[string]sqlTarget
}

var _ Prober = (*SQLProber)(nil)

func NewSQLProber() *SQLProber {
	return &SQLProber{targets: make(map[string]sqlTarget)}
}

// Add registers the handle of a replica by its full name.
func (p *SQLProber) Add(fullName string, db *sql.DB, dialect Dialect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets[fullName] = sqlTarget{db: db, dialect: dialect}
}

func (p *SQLProber) Probe(ctx context.Context, replica *Replica) (ProbeResult, error) {
	p.mu.RLock()
	target, ok := p.targets[replica.FullName()]
	p.mu.RUnlock()
	if !ok || target.db == nil {
		return ProbeResult{}, fmt.Errorf("%w: %s", ErrNoHandle, replica.FullName())
	}

	conn, err := target.db.Conn(ctx)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("failed to get a connection: %w", err)
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return ProbeResult{}, fmt.Errorf("ping failed: %w", err)
	}

	var lag time.Duration
	switch target.dialect {
	case DialectMySQL:
		lag, err = mysqlLag(ctx, conn)
	case DialectPostgres:
		lag, err = postgresLag(ctx, conn)
	default:
		err = fmt.Errorf("unsupported dialect %q", target.dialect)
	}
	if err != nil {
		return ProbeResult{LagErr: err}, nil
	}
	return ProbeResult{LagKnown: true, Lag: lag}, nil
}

func mysqlLag(ctx context.Context, conn *sql.Conn) (time.Duration, error) {
	rows, err := conn.QueryContext(ctx, mysqlReplicaStatus)
	if err != nil {
		// Servers before 8.0.22 only know the old spelling.
		rows, err = conn.QueryContext(ctx, mysqlSlaveStatus)
		if err != nil {
			return 0, err
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	lagIdx := -1
	for i, c := range columns {
		if strings.EqualFold(c, "Seconds_Behind_Source") || strings.EqualFold(c, "Seconds_Behind_Master") {
			lagIdx = i
			break
		}
	}
	if lagIdx < 0 {
		return 0, errLagNotReported
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errLagNotReported
	}

	values := make([]sql.RawBytes, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return 0, err
	}
	if values[lagIdx] == nil {
		// Replication is stopped.
		return 0, errLagNotReported
	}

	seconds, err := decimal.NewFromString(string(values[lagIdx]))
	if err != nil {
		return 0, fmt.Errorf("failed to parse lag %q: %w", values[lagIdx], err)
	}
	return secondsToDuration(seconds), nil
}

func postgresLag(ctx context.Context, conn *sql.Conn) (time.Duration, error) {
	var seconds decimal.NullDecimal
	if err := conn.QueryRowContext(ctx, postgresLagQuery).Scan(&seconds); err != nil {
		return 0, err
	}
	if !seconds.Valid {
		// Not in recovery, or nothing replayed yet.
		return 0, errLagNotReported
	}
	return secondsToDuration(seconds.Decimal), nil
}

func secondsToDuration(seconds decimal.Decimal) time.Duration {
	if seconds.IsNegative() {
		return 0
	}
	return time.Duration(seconds.Mul(decimal.NewFromInt(1000)).IntPart()) * time.Millisecond
}
