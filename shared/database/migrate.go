package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Migrate applies every pending goose migration found under the driver's directory of migrations
func (c *Client) Migrate(migrations fs.FS) error {
	dialect, dir, err := gooseDialect(c.Driver())
	if err != nil {
		return err
	}

	goose.SetLogger(&gooseLogger{logger: c.logger})
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(c.db.DB, dir); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			c.logger.Info("No migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	c.logger.Info("Database migrations applied successfully",
		slog.String("dialect", dialect),
	)
	return nil
}

func gooseDialect(driver string) (dialect, dir string, err error) {
	switch driver {
	case DriverPostgres:
		return "postgres", "postgres", nil
	case DriverSQLite:
		return "sqlite3", "sqlite", nil
	default:
		return "", "", fmt.Errorf("no migrations for driver: %s", driver)
	}
}

// gooseLogger implements goose.Logger on top of slog
type gooseLogger struct {
	logger *slog.Logger
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}
