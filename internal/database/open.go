package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectMySQL    dialect = "mysql"
)

// Open connects to the archive named by dsn and creates its schema. URLs
// with a postgres:// or postgresql:// scheme and key=value strings select
// PostgreSQL; mysql:// URLs and go-sql-driver DSNs select MySQL.
func Open(dsn string) (*SQLDatabase, error) {
	d, normalized, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(d), normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDb := &SQLDatabase{db: db, dialect: d}
	if err := sqlDb.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return sqlDb, nil
}

func parseDSN(dsn string) (dialect, string, error) {
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("empty database DSN")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return dialectPostgres, dsn, nil
	case strings.Contains(dsn, "host=") && !strings.Contains(dsn, "@"):
		return dialectPostgres, dsn, nil
	}

	cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
	if err != nil {
		return "", "", fmt.Errorf("unrecognised database DSN: %w", err)
	}
	cfg.ParseTime = true
	return dialectMySQL, cfg.FormatDSN(), nil
}
