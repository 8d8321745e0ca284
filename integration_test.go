package staffdb

import (
	"context"
	"os"
	"testing"
)

// getTestDB returns a manager for a live PostgreSQL instance, or skips
// the test when STAFFDB_TEST_HOST is unset.
func getTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("STAFFDB_TEST_HOST")
	if host == "" {
		t.Skip("STAFFDB_TEST_HOST not set, skipping integration test")
	}

	cfg := DefaultConfig(
		envOr("STAFFDB_TEST_NAME", "staffdb_test"),
		envOr("STAFFDB_TEST_USER", "postgres"),
		envOr("STAFFDB_TEST_PASSWORD", "password"),
		host,
		envOr("STAFFDB_TEST_PORT", "5432"),
	)
	cfg.Logger = quietBase().Logger

	return New(cfg)
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// seedStaff recreates the STAFF table with known rows. The DDL mirrors
// the external schema; unquoted identifiers fold to lowercase.
func seedStaff(t *testing.T, db *DB) context.Context {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		"DROP TABLE IF EXISTS STAFF",
		`CREATE TABLE STAFF (
			STAFF_ID BIGINT PRIMARY KEY,
			STAFF_USERNAME TEXT NOT NULL,
			STAFF_FIRSTNAME TEXT NOT NULL,
			STAFF_LASTNAME TEXT NOT NULL
		)`,
		`INSERT INTO STAFF VALUES
			(1, 'alovelace', 'Ada', 'Lovelace'),
			(2, 'ghopper', 'Grace', ''),
			(3, 'mhamilton', 'Margaret', 'Hamilton')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("seeding staff table: %v", err)
		}
	}
	return ctx
}

func TestIntegration_ConnectLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !db.Connected() {
		t.Fatal("expected connected state")
	}

	h1, err := db.Handle(ctx)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// Repeated Connect is a no-op on the same handle.
	if err := db.Connect(ctx); err != nil {
		t.Fatalf("repeated Connect failed: %v", err)
	}
	h2, _ := db.Handle(ctx)
	if h1 != h2 {
		t.Error("repeated Connect must reuse the existing handle")
	}

	// Close then reconnect establishes a fresh handle.
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if db.Connected() {
		t.Fatal("expected disconnected state after Close")
	}
	if err := db.Connect(ctx); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	h3, _ := db.Handle(ctx)
	if h3 == h1 {
		t.Error("reconnect after Close must open a new handle")
	}
}

func TestIntegration_QueryAutoConnects(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := seedStaff(t, db)

	// Drop the connection; the next lookup must re-establish it.
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	name, ok := db.StaffFirstName(ctx, "alovelace")
	if !ok || name != "Ada" {
		t.Errorf("expected Ada, got %q, %v", name, ok)
	}
	if !db.Connected() {
		t.Error("lookup should have auto-connected")
	}
}

func TestIntegration_StaffLookups(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := seedStaff(t, db)

	if name, ok := db.StaffFirstName(ctx, "alovelace"); !ok || name != "Ada" {
		t.Errorf("expected Ada, got %q, %v", name, ok)
	}
	if _, ok := db.StaffFirstName(ctx, "nobody"); ok {
		t.Error("unknown username should be absent")
	}

	if id, ok := db.StaffID(ctx, "mhamilton"); !ok || id != 3 {
		t.Errorf("expected 3, got %d, %v", id, ok)
	}
	if _, ok := db.StaffID(ctx, "nobody"); ok {
		t.Error("unknown username should be absent")
	}

	if name, ok := db.StaffFullName(ctx, 1); !ok || name != "Ada Lovelace" {
		t.Errorf("expected Ada Lovelace, got %q, %v", name, ok)
	}
	// Empty last name: the joined result is trimmed.
	if name, ok := db.StaffFullName(ctx, 2); !ok || name != "Grace" {
		t.Errorf("expected Grace, got %q, %v", name, ok)
	}
	if _, ok := db.StaffFullName(ctx, 999); ok {
		t.Error("unknown id should be absent, not an error")
	}
}

func TestIntegration_SelectOne_NotFound(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := seedStaff(t, db)

	var row Staff
	err := db.SelectOne(ctx, &row, "SELECT * FROM staff WHERE staff_id = ?", 999)
	if !IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestIntegration_Select(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := seedStaff(t, db)

	var rows []Staff
	err := db.Select(ctx, &rows, "SELECT * FROM staff ORDER BY staff_id")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Username != "alovelace" || rows[2].ID != 3 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestIntegration_CommitPersists(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := seedStaff(t, db)

	if err := db.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := db.Exec(ctx, "INSERT INTO staff VALUES (10, 'kjohnson', 'Katherine', 'Johnson')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if name, ok := db.StaffFullName(ctx, 10); !ok || name != "Katherine Johnson" {
		t.Errorf("expected committed row, got %q, %v", name, ok)
	}
}

func TestIntegration_RollbackDiscards(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := seedStaff(t, db)

	if err := db.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := db.Exec(ctx, "INSERT INTO staff VALUES (11, 'dritchie', 'Dennis', 'Ritchie')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if _, ok := db.StaffFullName(ctx, 11); ok {
		t.Error("rolled back row should be absent")
	}
}

func TestIntegration_QueryFailureRollsBack(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := seedStaff(t, db)

	if err := db.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := db.Exec(ctx, "INSERT INTO staff VALUES (12, 'kthompson', 'Ken', 'Thompson')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// A failing statement aborts the implicit transaction.
	_, err := db.Exec(ctx, "INSERT INTO no_such_table VALUES (1)")
	if !IsQuery(err) {
		t.Fatalf("expected query error, got %v", err)
	}

	// The earlier in-transaction insert is gone and the manager accepts
	// new statements outside a transaction.
	if _, ok := db.StaffFullName(ctx, 12); ok {
		t.Error("insert should have been rolled back with the failed transaction")
	}
}

func TestIntegration_Session(t *testing.T) {
	db := getTestDB(t)
	ctx := seedStaff(t, db)

	err := db.Session(ctx, func(db *DB) error {
		_, err := db.Exec(ctx, "INSERT INTO staff VALUES (20, 'rfrancis', 'Rosalind', 'Franklin')")
		return err
	})
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if db.Connected() {
		t.Error("Session must close the connection on completion")
	}
	if name, ok := db.StaffFullName(ctx, 20); !ok || name != "Rosalind Franklin" {
		t.Errorf("expected committed session row, got %q, %v", name, ok)
	}
	_ = db.Close()
}

func TestIntegration_Session_RollbackOnError(t *testing.T) {
	db := getTestDB(t)
	ctx := seedStaff(t, db)

	wantErr := &Error{Code: CodeUnknown, Message: "boom"}
	err := db.Session(ctx, func(db *DB) error {
		if _, err := db.Exec(ctx, "INSERT INTO staff VALUES (21, 'jbackus', 'John', 'Backus')"); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected callback error, got %v", err)
	}
	if db.Connected() {
		t.Error("Session must close the connection on failure")
	}
	if _, ok := db.StaffFullName(ctx, 21); ok {
		t.Error("failed session must roll back its insert")
	}
	_ = db.Close()
}

func TestIntegration_Health(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	status := db.Health(ctx)
	if !status.Connected || !status.Healthy {
		t.Errorf("expected healthy status, got %+v", status)
	}
	if status.PoolStats.MaxOpenConnections != 1 {
		t.Errorf("expected single-connection handle, got %d", status.PoolStats.MaxOpenConnections)
	}
	if !db.IsHealthy(ctx) {
		t.Error("IsHealthy should be true")
	}
}
