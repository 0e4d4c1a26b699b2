//go:build integration

// Package containers starts the infrastructure the integration suites run
// against. Each container kind is started once per test binary and shared
// across suites; suites are responsible for isolating their own data
// (Truncate, FlushAll, unique consumer groups).
package containers

import (
	"sync"
	"testing"
)

var (
	postgresOnce   sync.Once
	sharedPostgres *PostgresContainer

	redisOnce   sync.Once
	sharedRedis *RedisContainer

	redpandaOnce   sync.Once
	sharedRedpanda *RedpandaContainer
)

// GetPostgres returns the shared Postgres container, starting it on first use.
func GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	postgresOnce.Do(func() { sharedPostgres = NewPostgresContainer(t) })
	if sharedPostgres == nil {
		t.Fatal("postgres container failed to start in an earlier test")
	}
	return sharedPostgres
}

// GetRedis returns the shared Redis container, starting it on first use.
func GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	redisOnce.Do(func() { sharedRedis = NewRedisContainer(t) })
	if sharedRedis == nil {
		t.Fatal("redis container failed to start in an earlier test")
	}
	return sharedRedis
}

// GetRedpanda returns the shared Redpanda container, starting it on first use.
func GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	redpandaOnce.Do(func() { sharedRedpanda = NewRedpandaContainer(t) })
	if sharedRedpanda == nil {
		t.Fatal("redpanda container failed to start in an earlier test")
	}
	return sharedRedpanda
}
