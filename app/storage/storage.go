// Package storage keeps a log of requests made to the spam check service in a sql database.
// The database engine (sqlite or postgres) is wrapped by engine.SQL, each table is represented
// by a struct with methods implementing the business logic of its data.
package storage

import (
	"github.com/umputun/akismet-check/app/storage/engine"
)

// storage commands, each has per-engine queries
const (
	CmdCreateChecksTable engine.DBCmd = iota + 100
	CmdCreateChecksIndexes
	CmdAddCheck
	CmdReadChecks
)
