package staffdb

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// Staff is a read-only projection of the external STAFF table. The table
// is owned by the deployment environment; this library never creates or
// migrates it. PostgreSQL folds the unquoted uppercase column names of the
// external DDL to lowercase.
type Staff struct {
	bun.BaseModel `bun:"table:staff,alias:s"`

	ID        int64  `bun:"staff_id,pk"`
	Username  string `bun:"staff_username"`
	FirstName string `bun:"staff_firstname"`
	LastName  string `bun:"staff_lastname"`
}

// FullName returns "First Last", space-joined and trimmed.
func (s Staff) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// StaffFirstName looks up a staff member's first name by username. Any
// failure, including a missing row, yields an absent result; lookup
// helpers are the only operations that swallow errors, and they log the
// underlying cause.
func (db *DB) StaffFirstName(ctx context.Context, username string) (string, bool) {
	var name string
	err := db.SelectOne(ctx, &name,
		"SELECT staff_firstname FROM staff WHERE staff_username = ?", username)
	if err != nil {
		if !IsNotFound(err) {
			db.log().Warn("staff first name lookup failed", "username", username, "error", err)
		}
		return "", false
	}
	return name, true
}

// StaffID looks up a staff member's numeric id by username, with the same
// failure-to-absent policy as StaffFirstName.
func (db *DB) StaffID(ctx context.Context, username string) (int64, bool) {
	var id int64
	err := db.SelectOne(ctx, &id,
		"SELECT staff_id FROM staff WHERE staff_username = ?", username)
	if err != nil {
		if !IsNotFound(err) {
			db.log().Warn("staff id lookup failed", "username", username, "error", err)
		}
		return 0, false
	}
	return id, true
}

// StaffFullName looks up a staff member's display name by numeric id. A
// non-positive id is absent by definition and issues no query. A missing
// row or any failure yields an absent result.
func (db *DB) StaffFullName(ctx context.Context, id int64) (string, bool) {
	if id <= 0 {
		return "", false
	}

	var row Staff
	err := db.SelectOne(ctx, &row,
		"SELECT staff_firstname, staff_lastname FROM staff WHERE staff_id = ?", id)
	if err != nil {
		if !IsNotFound(err) {
			db.log().Warn("staff name lookup failed", "staff_id", id, "error", err)
		}
		return "", false
	}
	return row.FullName(), true
}
