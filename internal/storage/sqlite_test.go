package storage

import (
	"slices"
	"strings"
	"testing"
	"testing/fstest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) != 2 {
		t.Fatalf("expected 2 applied migrations, got %v", versions)
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_feature_requests_created", "idx_feature_requests_status_created", "idx_spec_revisions_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	cases := map[string]int{
		"001_feature_requests.sql": 1,
		"002_spec_revisions.sql":   2,
		"117_later.sql":            117,
	}
	for name, want := range cases {
		got, err := parseMigrationVersion(name)
		if err != nil {
			t.Errorf("parseMigrationVersion(%q): %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("parseMigrationVersion(%q) = %d, want %d", name, got, want)
		}
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil {
		t.Error("expected error for unnumbered migration")
	}
}

func TestLoadMigrations_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql": {Data: []byte("SELECT 1;")},
		"migrations/002_next.sql":  {Data: []byte("SELECT 1;")},
		"migrations/001_first.sql": {Data: []byte("SELECT 1;")},
		"migrations/README.md":     {Data: []byte("ignored")},
	}
	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	var got []int
	for _, m := range migrations {
		got = append(got, m.version)
	}
	if !slices.Equal(got, []int{1, 2, 10}) {
		t.Errorf("versions = %v, want [1 2 10]", got)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("SELECT 1;")},
		"migrations/001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected error for duplicate migration version")
	}
}

func TestDSNFor(t *testing.T) {
	dsn, err := dsnFor(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if dsn != "file::memory:?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)" {
		t.Errorf("dsn = %q", dsn)
	}

	dir := t.TempDir()
	dsn, err = dsnFor(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dsn, "file:") || !strings.Contains(dsn, "evodash.db?_pragma=") {
		t.Errorf("dsn = %q", dsn)
	}
}
