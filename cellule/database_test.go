package cellule

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cell.db")
	ctx := context.Background()

	db, err := NewDatabase(path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.AddMember(ctx, "Alice", "", "", RoleLeader, "2026-01-01"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema again: %v", err)
	}
	db.Close()

	// Reopening must keep existing rows.
	db, err = NewDatabase(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	members, err := db.Members(ctx)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0].Name != "Alice" {
		t.Fatalf("want Alice to survive reopen, got %+v", members)
	}
}

func TestNewDatabaseCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "cell.db")
	db, err := NewDatabase(path, nil)
	if err != nil {
		t.Fatalf("open nested: %v", err)
	}
	db.Close()
}

func TestIDsIncreaseMonotonically(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	var last int64
	for _, name := range []string{"A", "B", "C"} {
		id, err := db.AddMember(ctx, name, "", "", RoleMember, "2026-01-01")
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
	}
}

func TestOptionalFieldsStoredAsNull(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	if _, err := db.AddMember(ctx, "Alice", "", "", RoleMember, "2026-01-01"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	table, err := db.MembersTable(ctx)
	if err != nil {
		t.Fatalf("members table: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("want 1 row, got %d", table.Len())
	}
	if v := table.Rows[0][table.Column("phone")]; v != nil {
		t.Fatalf("phone should be NULL, got %#v", v)
	}
}

func TestPresentStoredAsZeroOrOne(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	db.AddAttendance(ctx, 1, "2026-01-01", true, "")
	db.AddAttendance(ctx, 1, "2026-01-01", false, "")

	table, err := db.Read(ctx, "SELECT present FROM attendance ORDER BY id")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if table.Rows[0][0] != int64(1) || table.Rows[1][0] != int64(0) {
		t.Fatalf("want 1 then 0, got %#v", table.Rows)
	}
}

func TestStorageRejectsUnknownStatus(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	if _, err := db.AddPrayer(ctx, "Bob", "healing", "2026-01-01", PrayerStatus("pending")); err == nil {
		t.Fatalf("expected CHECK constraint to reject status")
	}
}

func TestUpdatePrayerStatusUnknownID(t *testing.T) {
	db := tempDB(t)
	n, err := db.UpdatePrayerStatus(context.Background(), 4242, StatusAnswered)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 0 {
		t.Fatalf("want 0 rows affected, got %d", n)
	}
}

func TestGetMember(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	id, _ := db.AddMember(ctx, "Alice", "555-0100", "alice@example.org", RoleServant, "2026-01-01")

	m, err := db.GetMember(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Phone != "555-0100" || m.Email != "alice@example.org" || m.Role != RoleServant {
		t.Fatalf("unexpected member %+v", m)
	}

	if _, err := db.GetMember(ctx, 999); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("want sql.ErrNoRows, got %v", err)
	}
}

func TestWriteUsesBoundParameters(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	hostile := "Robert'); DROP TABLE members;--"
	if _, err := db.Write(ctx, "INSERT INTO members(name, role, joined) VALUES(?, ?, ?)", hostile, "Member", "2026-01-01"); err != nil {
		t.Fatalf("write: %v", err)
	}
	members, err := db.Members(ctx)
	if err != nil {
		t.Fatalf("members table should still exist: %v", err)
	}
	if len(members) != 1 || members[0].Name != hostile {
		t.Fatalf("name not stored verbatim: %+v", members)
	}
}

func TestReset(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	memberID, _ := db.AddMember(ctx, "Alice", "", "", RoleMember, "2026-01-01")
	db.AddAttendance(ctx, memberID, "2026-01-01", true, "")
	db.AddPrayer(ctx, "Alice", "peace", "2026-01-01", StatusOpen)

	if err := db.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for _, table := range []string{"members", "attendance", "prayers"} {
		res, err := db.Read(ctx, "SELECT COUNT(*) AS n FROM "+table)
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if res.Rows[0][0] != int64(0) {
			t.Fatalf("%s not empty after reset: %v", table, res.Rows[0][0])
		}
	}

	// Ids restart once the tables are recreated.
	id, err := db.AddMember(ctx, "Bob", "", "", RoleMember, "2026-01-02")
	if err != nil {
		t.Fatalf("add after reset: %v", err)
	}
	if id != 1 {
		t.Fatalf("want id 1 after reset, got %d", id)
	}
}
