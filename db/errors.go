package db

import (
	"strings"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

// ErrDatabaseClosed is returned when the ledger is used after Close.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is closed,
// either as ErrDatabaseClosed or as the driver's own error.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	// database/sql does not export its closed error
	return strings.Contains(err.Error(), "database is closed")
}
