package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	logx "remindbot/pkg/logx"
)

func openMySQL(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("mysql dsn is required")
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}

	st := &sqlStore{db: db, log: log}
	if err := st.migrate(ctx, "migrations_mysql.sql"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql migrate: %w", err)
	}
	// never log the DSN, it carries the password
	log.Info("mysql store opened", logx.String("addr", mc.Addr), logx.String("db", mc.DBName))
	return st, nil
}
