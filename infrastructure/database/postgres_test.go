package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mu        sync.Mutex
	failPings int
	pings     int
	execErr   error
	executed  []string
}

func (f *fakeTarget) PingContext(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.pings <= f.failPings {
		return errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	return nil
}

func (f *fakeTarget) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, query)
	return nil, f.execErr
}

func TestMigrateWhenReachable_AppliesSchemaOnFirstSuccessfulPing(t *testing.T) {
	target := &fakeTarget{failPings: 3}

	err := migrateWhenReachable(context.Background(), target, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 4, target.pings)
	require.Equal(t, []string{Schema}, target.executed)
}

func TestMigrateWhenReachable_StopsWithContext(t *testing.T) {
	target := &fakeTarget{failPings: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := migrateWhenReachable(ctx, target, time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, target.executed)
}

func TestMigrateWhenReachable_ReportsSchemaError(t *testing.T) {
	target := &fakeTarget{execErr: errors.New("permission denied for schema public")}

	err := migrateWhenReachable(context.Background(), target, time.Millisecond)
	require.ErrorContains(t, err, "apply schema")
	require.ErrorIs(t, err, target.execErr)
}
