package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, a network timeout or refused connection, a Postgres error
// pgconn marks safe to retry, or SQLite lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"database is locked",
		"sqlite_busy",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"the database system is starting up",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
