package postgres

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

// migrationLockKey — ключ pg_advisory_lock; один на все экземпляры сервиса.
const migrationLockKey = int64(72310519)

const schemaTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

var migrationFileRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) String() string { return fmt.Sprintf("%04d_%s", m.Version, m.Name) }

// MigrationState описывает состояние схемы. Version — последняя применённая версия, 0 для пустой базы.
type MigrationState struct {
	Version int64
	Applied int
	Pending int
}

// MigrateUp применяет ожидающие миграции по возрастанию версии; steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, func(m *migrator) error {
		applied, err := m.applied(ctx)
		if err != nil {
			return err
		}
		plan := pendingMigrations(m.all, applied)
		if steps > 0 {
			plan = plan[:min(steps, len(plan))]
		}
		for _, mig := range plan {
			if err := m.apply(ctx, mig, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps последних применённых миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, func(m *migrator) error {
		applied, err := m.applied(ctx)
		if err != nil {
			return err
		}
		plan, err := rollbackPlan(m.all, applied, max(steps, 1))
		if err != nil {
			return err
		}
		for _, mig := range plan {
			if err := m.apply(ctx, mig, false); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) MigrationStatus(ctx context.Context) (state MigrationState, err error) {
	err = s.migrate(ctx, func(m *migrator) error {
		applied, err := m.applied(ctx)
		if err != nil {
			return err
		}
		state.Applied = len(applied)
		if len(applied) > 0 {
			state.Version = applied[len(applied)-1]
		}
		state.Pending = len(pendingMigrations(m.all, applied))
		return nil
	})
	return state, err
}

// migrator работает на одном выделенном соединении pgx, которое держит advisory lock.
type migrator struct {
	conn   *pgx.Conn
	all    []migration
	logger *log.Entry
}

func (s *Store) migrate(ctx context.Context, fn func(*migrator) error) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	all, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		stdConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver connection %T", driverConn)
		}
		m := &migrator{conn: stdConn.Conn(), all: all, logger: s.logger}

		lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		if _, err := m.conn.Exec(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			_, _ = m.conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
		}()

		if _, err := m.conn.Exec(ctx, schemaTableDDL); err != nil {
			return fmt.Errorf("ensure schema_migrations: %w", err)
		}
		return fn(m)
	})
}

// applied возвращает применённые версии по возрастанию.
func (m *migrator) applied(ctx context.Context) ([]int64, error) {
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return versions, nil
}

// apply выполняет скрипт и запись в schema_migrations в одной транзакции.
func (m *migrator) apply(ctx context.Context, mig migration, up bool) error {
	direction := "down"
	if up {
		direction = "up"
	}

	err := pgx.BeginFunc(ctx, m.conn, func(tx pgx.Tx) error {
		if up {
			if _, err := tx.Exec(ctx, mig.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
				mig.Version, mig.Name, time.Now().UTC())
			return err
		}
		if _, err := tx.Exec(ctx, mig.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("migrate %s %s: %w", direction, mig, err)
	}

	m.logger.WithFields(log.Fields{
		"migration": mig.String(),
		"direction": direction,
	}).Info("migration applied")
	return nil
}

func pendingMigrations(all []migration, applied []int64) []migration {
	return slices.DeleteFunc(slices.Clone(all), func(m migration) bool {
		return slices.Contains(applied, m.Version)
	})
}

// rollbackPlan выбирает steps последних применённых миграций от новой к старой.
func rollbackPlan(all []migration, applied []int64, steps int) ([]migration, error) {
	latest := slices.Clone(applied)
	slices.Sort(latest)
	slices.Reverse(latest)

	plan := make([]migration, 0, min(steps, len(latest)))
	for _, version := range latest[:min(steps, len(latest))] {
		idx := slices.IndexFunc(all, func(m migration) bool { return m.Version == version })
		if idx < 0 {
			return nil, fmt.Errorf("cannot roll back unknown migration version %d", version)
		}
		plan = append(plan, all[idx])
	}
	return plan, nil
}

// loadMigrations собирает пары NNNN_name.up.sql / NNNN_name.down.sql, отсортированные по версии.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration, len(files)/2)
	for _, file := range files {
		base := path.Base(file)
		match := migrationFileRe.FindStringSubmatch(base)
		if match == nil {
			return nil, fmt.Errorf("invalid migration file name %q", base)
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration version in %q: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file %q is empty", base)
		}

		m := byVersion[version]
		switch {
		case m == nil:
			m = &migration{Version: version, Name: match[2]}
			byVersion[version] = m
		case m.Name != match[2]:
			return nil, fmt.Errorf("migration %d name mismatch: %q vs %q", version, m.Name, match[2])
		}

		script := &m.Up
		if match[3] == "down" {
			script = &m.Down
		}
		*script = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}
