/*
Package staffdb provides a guarded single-connection data-access layer for
the external STAFF directory in PostgreSQL.

Connection parameters are resolved from layered sources, first complete
set wins, with the environment outranking a config file per key:
  - Environment variables: DB_NAME, DB_USER, DB_PASSWORD, DB_HOST and the
    optional DB_PORT (default 5432). A .env file is loaded when present.
  - A JSON config file (keys dbname, user, password, host, port) probed
    next to the running binary and under the working directory.
  - Literal development credentials, only with explicit opt-in
    (Config.AllowFallback or STAFFDB_ALLOW_FALLBACK=true).

The manager owns exactly one connection. It is opened lazily on first use,
reused while open, and re-established transparently after Close. There is
no pooling and no retry.

# Basic Usage

	db := staffdb.New(staffdb.Config{
	    Logger: slog.Default(),
	})
	defer db.Close()

	name, ok := db.StaffFirstName(ctx, "jdoe")
	if !ok {
	    // unknown username, or the lookup failed
	}

	full, ok := db.StaffFullName(ctx, 42) // "First Last"

# Queries

	var rows []staffdb.Staff
	err := db.Select(ctx, &rows, "SELECT * FROM staff WHERE staff_lastname = ?", "Doe")

	var one staffdb.Staff
	err = db.SelectOne(ctx, &one, "SELECT * FROM staff WHERE staff_id = ?", 42)
	if staffdb.IsNotFound(err) {
	    // no such row
	}

# Transactions

The manager carries at most one implicit transaction. Statements run
inside it once Begin has been called; a failed statement rolls it back.

	if err := db.Begin(ctx); err != nil {
	    return err
	}
	// ... statements ...
	return db.Commit()

Scoped acquisition connects, begins, commits on success, rolls back on
error or panic, and closes:

	err := db.Session(ctx, func(db *staffdb.DB) error {
	    // ... statements ...
	    return nil
	})

# Error Handling

Failures carry a typed *Error with a classification code:

	if err := db.Connect(ctx); err != nil {
	    if staffdb.IsConnection(err) {
	        // database unreachable
	    }
	    if code, ok := staffdb.GetErrorCode(err); ok {
	        fmt.Println(code) // CONNECTION_FAILED
	    }
	}

The staff lookup helpers are the exception: they convert every failure
into an absent result and log the cause.
*/
package staffdb
