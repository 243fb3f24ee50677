package configsqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Struct describes where the database lives. When Url is set it points at a
// remote libsql deployment, otherwise File names a local sqlite database.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		connStr := config.Url
		if config.AuthToken != "" {
			connStr = fmt.Sprintf("%s?authToken=%s", config.Url, config.AuthToken)
		}
		return sql.Open("libsql", connStr)
	}

	if config.File == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}
	dbpath, err := filepath.Abs(config.File)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(dbpath)
	if os.IsNotExist(statErr) {
		f, err := os.Create(dbpath)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	db, err := sql.Open("sqlite", dbpath)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	return db, nil
}
