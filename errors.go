package staffdb

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorCode represents a database error classification
type ErrorCode string

const (
	CodeConfigUnresolved ErrorCode = "CONFIG_UNRESOLVED"
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeNotConnected     ErrorCode = "NOT_CONNECTED"
	CodeQueryFailed      ErrorCode = "QUERY_FAILED"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

// Sentinel errors for quick checks
var (
	ErrConfigUnresolved = errors.New("staffdb: configuration unresolved")
	ErrConnection       = errors.New("staffdb: connection failed")
	ErrNotConnected     = errors.New("staffdb: no active connection")
	ErrQuery            = errors.New("staffdb: query failed")
	ErrNotFound         = errors.New("staffdb: record not found")
	ErrTimeout          = errors.New("staffdb: operation timeout")
)

// Error is a rich database error with context
type Error struct {
	Code       ErrorCode // Error classification
	Message    string    // Human-readable message
	Op         string    // Operation that failed (e.g., "Connect", "Select")
	Table      string    // Table name if known
	Column     string    // Column name if known
	Constraint string    // Constraint name if applicable
	Detail     string    // Additional detail from PostgreSQL
	Hint       string    // Hint from PostgreSQL
	Cause      error     // Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("staffdb: %s", e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("staffdb.%s: %s", e.Op, e.Message)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table: %s)", e.Table)
	}
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (constraint: %s)", e.Constraint)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for sentinel error matching
func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodeConfigUnresolved:
		return target == ErrConfigUnresolved
	case CodeConnectionFailed:
		return target == ErrConnection
	case CodeNotConnected:
		return target == ErrNotConnected
	case CodeQueryFailed:
		return target == ErrQuery
	case CodeNotFound:
		return target == ErrNotFound
	case CodeTimeout:
		return target == ErrTimeout
	}
	return false
}

// wrapError converts a raw error to a rich Error
func wrapError(err error, op string) error {
	if err == nil {
		return nil
	}

	// Already wrapped
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}

	// Check for "no rows" error
	if err.Error() == "sql: no rows in result set" {
		return &Error{
			Code:    CodeNotFound,
			Message: "record not found",
			Op:      op,
			Cause:   err,
		}
	}

	// PostgreSQL specific errors
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrapPgError(pgErr, op)
	}

	// Generic wrapping
	return &Error{
		Code:    CodeQueryFailed,
		Message: err.Error(),
		Op:      op,
		Cause:   err,
	}
}

// wrapPgError converts PostgreSQL errors to rich errors
func wrapPgError(pgErr *pgconn.PgError, op string) *Error {
	e := &Error{
		Op:         op,
		Table:      pgErr.TableName,
		Column:     pgErr.ColumnName,
		Constraint: pgErr.ConstraintName,
		Detail:     pgErr.Detail,
		Hint:       pgErr.Hint,
		Cause:      pgErr,
	}

	// Map PostgreSQL error codes
	// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
	switch pgErr.Code {
	case "57014": // query_canceled (timeout)
		e.Code = CodeTimeout
		e.Message = "query was cancelled due to timeout"
	case "08000", "08003", "08006": // connection errors
		e.Code = CodeConnectionFailed
		e.Message = "database connection failed"
	default:
		e.Code = CodeQueryFailed
		e.Message = pgErr.Message
	}

	return e
}

// IsConfigUnresolved checks if error means no configuration source worked
func IsConfigUnresolved(err error) bool {
	return errors.Is(err, ErrConfigUnresolved)
}

// IsConnection checks if error is a connection error
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsNotConnected checks if error means no connection was open
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsQuery checks if error is a query execution error
func IsQuery(err error) bool {
	return errors.Is(err, ErrQuery)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout checks if error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// GetErrorCode extracts the error code if it's a staffdb error
func GetErrorCode(err error) (ErrorCode, bool) {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Code, true
	}
	return "", false
}
