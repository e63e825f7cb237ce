package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM chargebacks":                       "SELECT",
		"  insert into chargeback_states (id) values (1)": "INSERT",
		"WITH latest AS (SELECT 1) SELECT * FROM latest":  "SELECT",
		"UPDATE chargebacks SET updated_at = now()":       "UPDATE",
		"":                                                "UNKNOWN",
		"VACUUM":                                          "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}

	upsert := "INSERT INTO chargebacks (id) VALUES (?) ON CONFLICT (invoice_id, payment_id, is_retrieval) DO UPDATE SET shop_id = excluded.shop_id"
	assert.Equal(t, "UPSERT", operationFromSQL(upsert))
}

func TestTableFromSQLAndLedgerKind(t *testing.T) {
	cases := []struct {
		sql   string
		table string
		kind  string
	}{
		{sql: "SELECT * FROM chargebacks WHERE id = ?", table: "chargebacks", kind: "root"},
		{sql: "INSERT INTO chargeback_hold_states (id) VALUES (?)", table: "chargeback_hold_states", kind: "hold"},
		{sql: `SELECT id FROM "chargeback_states" ORDER BY created_at`, table: "chargeback_states", kind: "status"},
		{sql: "SELECT * FROM schema_migrations", table: "schema_migrations", kind: "other"},
		{sql: "SELECT 1", table: "", kind: "none"},
	}
	for _, tc := range cases {
		table := tableFromSQL(tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
		assert.Equal(t, tc.kind, ledgerKind(table), tc.sql)
	}
}

func TestParamsFilterStripsValuesByDefault(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	_, params := l.ParamsFilter(context.Background(), "SELECT ?", "411111******1111")
	assert.Nil(t, params)

	l = NewGormLogger(GormLoggerConfig{LogParams: true})
	_, params = l.ParamsFilter(context.Background(), "SELECT ?", "x")
	assert.Len(t, params, 1)
}

func TestTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: 10 * time.Millisecond})
	query := func() (string, int64) { return "SELECT * FROM chargeback_states WHERE chargeback_id = ?", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query, nil)
	l.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	l.Trace(ctx, time.Now(), query, errors.New("connection reset"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "status", entries[1].ContextMap()["ledger"])
}
