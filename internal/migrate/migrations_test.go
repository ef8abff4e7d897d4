package migrate_test

import (
	"context"
	"testing"

	"teamline/internal/db"
	"teamline/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	v1, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	v2, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if v1 == 0 || v1 != v2 {
		t.Fatalf("expected stable non-zero version, got %d then %d", v1, v2)
	}
}

func TestOneActiveSprintIndex(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, `INSERT INTO projects(id,name,status,created_by,created_at) VALUES ('p','P','active','u','2024-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO sprints(id,project_id,name,status,created_at) VALUES ('s1','p','one','active','2024-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert sprint: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO sprints(id,project_id,name,status,created_at) VALUES ('s2','p','two','active','2024-01-01T00:00:00Z')`); err == nil {
		t.Fatalf("expected unique violation for second active sprint")
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO sprints(id,project_id,name,status,created_at) VALUES ('s3','p','old','completed','2024-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("completed sprint should not conflict: %v", err)
	}
}
