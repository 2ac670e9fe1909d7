package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationsFS はsessions/messagesスキーマのマイグレーションSQLを
// バイナリに埋め込む。スキーマ変更は必ずup/downのペアで追加する。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations は埋め込み済みのスキーママイグレーションをすべて適用し、
// sessions・messagesテーブルを最新の定義に揃える。
// すでに最新の場合は何もせずに返る。
func RunMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply chat schema migrations: %w", err)
	}

	return nil
}
