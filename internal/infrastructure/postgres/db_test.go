package postgres

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"
)

func TestNewPoolWithConfigInvalidURL(t *testing.T) {
	ctx := context.Background()

	if _, err := NewPoolWithConfig(ctx, PoolConfig{DatabaseURL: "not-a-url"}); err == nil {
		t.Fatalf("expected error when parsing invalid URL")
	}
}

func TestNewPoolWithConfigPingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := PoolConfig{
		DatabaseURL:    "postgres://invalid:5432/db",
		MaxConns:       1,
		MinConns:       0,
		ConnectTimeout: 500 * time.Millisecond,
	}

	_, err := NewPoolWithConfig(ctx, cfg)
	if err == nil {
		t.Fatalf("expected error when pool cannot connect")
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}

	if len(names) == 0 || len(names)%2 != 0 {
		t.Fatalf("expected up/down pairs, got %v", names)
	}

	ups := 0
	for _, name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			ups++
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			if _, err := fs.Stat(migrationsFS, down); err != nil {
				t.Fatalf("missing down migration for %s", name)
			}
		}
	}

	if ups != len(names)/2 {
		t.Fatalf("expected %d up migrations, got %d", len(names)/2, ups)
	}
}
