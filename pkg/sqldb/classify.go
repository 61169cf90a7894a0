package sqldb

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Transient server error numbers: connection slots exhausted, server
// shutdown in progress, lock wait timeout, deadlock, server gone away,
// connection lost mid-query.
var transientServerCodes = map[uint16]bool{
	1040: true,
	1053: true,
	1205: true,
	1213: true,
	2006: true,
	2013: true,
}

// IsTransient reports whether an error belongs to the retryable
// infrastructure class. Syntax, auth and schema errors are fatal and must
// abort immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return transientServerCodes[myErr.Number]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}
