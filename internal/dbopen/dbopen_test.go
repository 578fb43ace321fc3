package dbopen

import (
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemoryAppliesSchema(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id TEXT PRIMARY KEY, n INTEGER)`))

	if _, err := db.Exec(`INSERT INTO things (id, n) VALUES ('a', 1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT n FROM things WHERE id = 'a'`).Scan(&n); err != nil {
		t.Fatalf("select: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
}

func TestOpenSchemaIdempotent(t *testing.T) {
	schema := `CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY)`
	db := OpenMemory(t, WithSchema(schema), WithSchema(schema))

	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpenBadSchema(t *testing.T) {
	_, err := Open(":memory:", WithSchema(`NOT VALID SQL`))
	if err == nil {
		t.Fatal("expected error for invalid schema")
	}
}
