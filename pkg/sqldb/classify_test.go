package sqldb

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"invalid conn", mysql.ErrInvalidConn, true},
		{"deadline", context.DeadlineExceeded, true},
		{"deadlock 1213", &mysql.MySQLError{Number: 1213}, true},
		{"lock wait 1205", &mysql.MySQLError{Number: 1205}, true},
		{"too many connections 1040", &mysql.MySQLError{Number: 1040}, true},
		{"server shutdown 1053", &mysql.MySQLError{Number: 1053}, true},
		{"syntax 1064", &mysql.MySQLError{Number: 1064}, false},
		{"access denied 1045", &mysql.MySQLError{Number: 1045}, false},
		{"unknown table 1146", &mysql.MySQLError{Number: 1146}, false},
		{"unknown column 1054", &mysql.MySQLError{Number: 1054}, false},
		{"connection reset string", errors.New("read tcp: connection reset by peer"), true},
		{"plain error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
