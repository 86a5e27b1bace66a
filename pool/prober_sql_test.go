package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-rwsplit/pool"
	"github.com/ice-blockchain/go-rwsplit/test_helpers"
)

func newProberFixture(t *testing.T, dialect pool.Dialect) (*pool.SQLProber, *pool.Replica, sqlmock.Sqlmock) {
	t.Helper()

	g, err := pool.NewGroup(pool.GroupOpts{
		Name:     "orders",
		Primary:  "primary",
		Replicas: []pool.ReplicaOpts{{Name: "r1"}},
	})
	require.NoError(t, err)

	targets := test_helpers.NewMockTargets(t, "orders.r1")
	t.Cleanup(func() { targets.ExpectationsWereMet(t) })

	prober := pool.NewSQLProber()
	prober.Add("orders.r1", targets.DBs["orders.r1"], dialect)
	return prober, g.Replica("r1"), targets.Mock(t, "orders.r1")
}

func TestDialectForDriver(t *testing.T) {
	require.Equal(t, pool.DialectMySQL, pool.DialectForDriver("mysql"))
	require.Equal(t, pool.DialectPostgres, pool.DialectForDriver("pgx"))
	require.Equal(t, pool.DialectPostgres, pool.DialectForDriver("Postgres"))
	require.Equal(t, pool.DialectUnknown, pool.DialectForDriver("sqlite3"))
}

func TestSQLProber_MySQL(t *testing.T) {
	prober, r1, mock := newProberFixture(t, pool.DialectMySQL)

	mock.ExpectPing()
	mock.ExpectQuery("SHOW REPLICA STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Replica_IO_State", "Seconds_Behind_Source"}).
			AddRow("Waiting for source to send event", "3"))

	res, err := prober.Probe(context.Background(), r1)
	require.NoError(t, err)
	require.True(t, res.LagKnown)
	require.Equal(t, 3*time.Second, res.Lag)
}

func TestSQLProber_MySQLLegacyStatus(t *testing.T) {
	prober, r1, mock := newProberFixture(t, pool.DialectMySQL)

	mock.ExpectPing()
	mock.ExpectQuery("SHOW REPLICA STATUS").WillReturnError(errors.New("syntax error"))
	mock.ExpectQuery("SHOW SLAVE STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Slave_IO_State", "Seconds_Behind_Master"}).
			AddRow("", nil))

	res, err := prober.Probe(context.Background(), r1)
	require.NoError(t, err)
	require.False(t, res.LagKnown)
	require.Error(t, res.LagErr)
}

func TestSQLProber_MySQLNotReplica(t *testing.T) {
	prober, r1, mock := newProberFixture(t, pool.DialectMySQL)

	mock.ExpectPing()
	mock.ExpectQuery("SHOW REPLICA STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Replica_IO_State", "Seconds_Behind_Source"}))

	res, err := prober.Probe(context.Background(), r1)
	require.NoError(t, err)
	require.False(t, res.LagKnown)
}

func TestSQLProber_Postgres(t *testing.T) {
	prober, r1, mock := newProberFixture(t, pool.DialectPostgres)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT EXTRACT(EPOCH FROM now() - pg_last_xact_replay_timestamp())").
		WillReturnRows(sqlmock.NewRows([]string{"extract"}).AddRow("1.5"))

	res, err := prober.Probe(context.Background(), r1)
	require.NoError(t, err)
	require.True(t, res.LagKnown)
	require.Equal(t, 1500*time.Millisecond, res.Lag)
}

func TestSQLProber_PostgresNull(t *testing.T) {
	prober, r1, mock := newProberFixture(t, pool.DialectPostgres)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT EXTRACT(EPOCH FROM now() - pg_last_xact_replay_timestamp())").
		WillReturnRows(sqlmock.NewRows([]string{"extract"}).AddRow(nil))

	res, err := prober.Probe(context.Background(), r1)
	require.NoError(t, err)
	require.False(t, res.LagKnown)
}

func TestSQLProber_UnsupportedDialect(t *testing.T) {
	prober, r1, mock := newProberFixture(t, pool.DialectUnknown)

	mock.ExpectPing()

	res, err := prober.Probe(context.Background(), r1)
	require.NoError(t, err)
	require.False(t, res.LagKnown)
	require.Error(t, res.LagErr)
}

func TestSQLProber_PingFailure(t *testing.T) {
	prober, r1, mock := newProberFixture(t, pool.DialectMySQL)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	_, err := prober.Probe(context.Background(), r1)
	require.ErrorContains(t, err, "connection refused")
}

func TestSQLProber_NoHandle(t *testing.T) {
	g, err := pool.NewGroup(pool.GroupOpts{
		Name:     "orders",
		Primary:  "primary",
		Replicas: []pool.ReplicaOpts{{Name: "r1"}},
	})
	require.NoError(t, err)

	_, err = pool.NewSQLProber().Probe(context.Background(), g.Replica("r1"))
	require.ErrorIs(t, err, pool.ErrNoHandle)
}
