// Package mysql implements the remote conversation backend on MySQL.
package mysql

import (
	"context"
	"database/sql"

	// Registers the "mysql" database/sql driver.
	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// DB wraps a MySQL connection implementing store.Driver.
type DB struct {
	db *sql.DB
}

// NewDB opens a connection with the given DSN and ensures the schema exists.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	d := &DB{db: db}
	if err := d.ensureTables(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ensure tables")
	}
	return d, nil
}

func (*DB) Name() string { return "mysql" }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) ensureTables(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS `conversations` (" +
			"`id` VARCHAR(64) NOT NULL PRIMARY KEY," +
			"`user_id` VARCHAR(64) NOT NULL," +
			"`title` TEXT NOT NULL," +
			"`created_ts` BIGINT NOT NULL," +
			"`updated_ts` BIGINT NOT NULL," +
			"INDEX `idx_conversations_user` (`user_id`))",
		"CREATE TABLE IF NOT EXISTS `messages` (" +
			"`id` INT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
			"`conversation_id` VARCHAR(64) NOT NULL," +
			"`role` VARCHAR(32) NOT NULL," +
			"`content` TEXT NOT NULL," +
			"`created_ts` BIGINT NOT NULL," +
			"INDEX `idx_messages_conversation` (`conversation_id`)," +
			"CONSTRAINT `fk_messages_conversation` FOREIGN KEY (`conversation_id`) " +
			"REFERENCES `conversations`(`id`) ON DELETE CASCADE)",
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
