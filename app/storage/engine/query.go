package engine

import "fmt"

// DBCmd is a database command, each table defines its own set
type DBCmd int

// Query is the text of a command per engine. Empty Postgres means the sqlite text is used,
// with placeholders rewritten by SQL.PickQuery.
type Query struct {
	Sqlite   string
	Postgres string
}

// Queries maps commands to their texts
type Queries map[DBCmd]Query

// NewQueryMap makes empty Queries, to be filled with Add and AddSame
func NewQueryMap() Queries {
	return Queries{}
}

// Add sets engine-specific texts of cmd
func (qs Queries) Add(cmd DBCmd, q Query) Queries {
	qs[cmd] = q
	return qs
}

// AddSame sets a text shared by all engines
func (qs Queries) AddSame(cmd DBCmd, q string) Queries {
	return qs.Add(cmd, Query{Sqlite: q})
}

// Pick returns the text of cmd for dbType as written
func (qs Queries) Pick(dbType Type, cmd DBCmd) (string, error) {
	q, ok := qs[cmd]
	if !ok {
		return "", fmt.Errorf("unsupported command %d", cmd)
	}
	switch dbType {
	case Sqlite:
		return q.Sqlite, nil
	case Postgres:
		if q.Postgres == "" {
			return q.Sqlite, nil
		}
		return q.Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}

// PickQuery returns the text of cmd ready to run on this engine
func (e *SQL) PickQuery(qs Queries, cmd DBCmd) (string, error) {
	q, err := qs.Pick(e.dbType, cmd)
	if err != nil {
		return "", err
	}
	return e.Adopt(q), nil
}
