package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cmdCreateResults DBCmd = iota + 500
	cmdAddResult
	cmdLastResults
)

var resultQueries = NewQueryMap().
	Add(cmdCreateResults, Query{
		Sqlite:   `CREATE TABLE IF NOT EXISTS results (id INTEGER PRIMARY KEY AUTOINCREMENT, gid TEXT DEFAULT '', spam BOOLEAN)`,
		Postgres: `CREATE TABLE IF NOT EXISTS results (id SERIAL PRIMARY KEY, gid TEXT DEFAULT '', spam BOOLEAN)`,
	}).
	AddSame(cmdAddResult, `INSERT INTO results (gid, spam) VALUES (?, ?)`).
	AddSame(cmdLastResults, `SELECT id, spam FROM results WHERE gid = ? AND spam = ? ORDER BY id DESC LIMIT ?`)

func TestQueries_Pick(t *testing.T) {
	tbl := []struct {
		name    string
		dbType  Type
		cmd     DBCmd
		want    string
		wantErr string
	}{
		{name: "sqlite create", dbType: Sqlite, cmd: cmdCreateResults,
			want: `CREATE TABLE IF NOT EXISTS results (id INTEGER PRIMARY KEY AUTOINCREMENT, gid TEXT DEFAULT '', spam BOOLEAN)`},
		{name: "postgres create", dbType: Postgres, cmd: cmdCreateResults,
			want: `CREATE TABLE IF NOT EXISTS results (id SERIAL PRIMARY KEY, gid TEXT DEFAULT '', spam BOOLEAN)`},
		{name: "shared insert for sqlite", dbType: Sqlite, cmd: cmdAddResult, want: `INSERT INTO results (gid, spam) VALUES (?, ?)`},
		{name: "shared insert for postgres, as written", dbType: Postgres, cmd: cmdAddResult,
			want: `INSERT INTO results (gid, spam) VALUES (?, ?)`},
		{name: "unknown engine", dbType: Unknown, cmd: cmdAddResult, wantErr: "unsupported database type"},
		{name: "unknown command", dbType: Sqlite, cmd: 42, wantErr: "unsupported command 42"},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resultQueries.Pick(tt.dbType, tt.cmd)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQL_PickQuery(t *testing.T) {
	t.Run("postgres placeholders", func(t *testing.T) {
		e := &SQL{dbType: Postgres}
		q, err := e.PickQuery(resultQueries, cmdLastResults)
		require.NoError(t, err)
		assert.Equal(t, `SELECT id, spam FROM results WHERE gid = $1 AND spam = $2 ORDER BY id DESC LIMIT $3`, q)

		q, err = e.PickQuery(resultQueries, cmdCreateResults)
		require.NoError(t, err)
		assert.Contains(t, q, "SERIAL PRIMARY KEY")
		assert.Contains(t, q, "DEFAULT ''", "quoted text untouched")
	})

	t.Run("sqlite as is", func(t *testing.T) {
		e := &SQL{dbType: Sqlite}
		q, err := e.PickQuery(resultQueries, cmdAddResult)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO results (gid, spam) VALUES (?, ?)`, q)
	})

	t.Run("missing command", func(t *testing.T) {
		e := &SQL{dbType: Postgres}
		_, err := e.PickQuery(resultQueries, 42)
		assert.Error(t, err)
	})

	t.Run("runs on sqlite", func(t *testing.T) {
		db, err := NewSqlite(":memory:", "site1")
		require.NoError(t, err)
		defer db.Close()

		for _, cmd := range []DBCmd{cmdCreateResults, cmdAddResult, cmdAddResult} {
			q, err := db.PickQuery(resultQueries, cmd)
			require.NoError(t, err)
			if cmd == cmdCreateResults {
				_, err = db.Exec(q)
			} else {
				_, err = db.Exec(q, db.GID(), true)
			}
			require.NoError(t, err)
		}

		q, err := db.PickQuery(resultQueries, cmdLastResults)
		require.NoError(t, err)
		var res []struct {
			ID   int64 `db:"id"`
			Spam bool  `db:"spam"`
		}
		require.NoError(t, db.Select(&res, q, db.GID(), true, 1))
		require.Len(t, res, 1)
		assert.Equal(t, int64(2), res[0].ID)
		assert.True(t, res[0].Spam)
	})
}
