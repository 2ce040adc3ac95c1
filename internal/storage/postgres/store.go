// Package postgres содержит PostgreSQL-реализации хранилищ заказов, журнала событий и outbox.
package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"
	log "github.com/sirupsen/logrus"
)

const (
	pingTimeout = 5 * time.Second
	opTimeout   = 5 * time.Second

	defaultApplicationName = "order-service"
)

var errNotInitialized = errors.New("postgres store is not initialized")

// Config задаёт подключение и размеры пула. Нулевые значения заменяются умолчаниями.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// ApplicationName попадает в pg_stat_activity, если не задан в самом DSN.
	ApplicationName string
	// LogQueries пишет каждый запрос в лог на уровне debug. Ошибочные запросы логируются всегда.
	LogQueries bool
}

// Store держит пул подключений database/sql поверх драйвера pgx.
type Store struct {
	db     *sql.DB
	logger *log.Entry
}

// Open открывает пул и проверяет, что база отвечает.
func Open(ctx context.Context, cfg Config, logger *log.Entry) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if logger == nil {
		logger = log.WithField("component", "postgres")
	}

	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if connCfg.RuntimeParams["application_name"] == "" {
		connCfg.RuntimeParams["application_name"] = cmp.Or(cfg.ApplicationName, defaultApplicationName)
	}
	traceLevel := tracelog.LogLevelError
	if cfg.LogQueries {
		traceLevel = tracelog.LogLevelInfo
	}
	connCfg.Tracer = &tracelog.TraceLog{Logger: queryLogger(logger), LogLevel: traceLevel}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(cmp.Or(max(cfg.MaxOpenConns, 0), 25))
	db.SetMaxIdleConns(cmp.Or(max(cfg.MaxIdleConns, 0), 25))
	db.SetConnMaxLifetime(cmp.Or(max(cfg.ConnMaxLifetime, 0), 30*time.Minute))
	db.SetConnMaxIdleTime(cmp.Or(max(cfg.ConnMaxIdleTime, 0), 5*time.Minute))

	store := &Store{db: db, logger: logger}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", connCfg.Host, connCfg.Port, err)
	}

	logger.WithFields(log.Fields{
		"host":     connCfg.Host,
		"database": connCfg.Database,
	}).Info("postgres connection established")
	return store, nil
}

// queryLogger пересылает сообщения трассировки pgx в logrus. Успешные запросы идут на debug.
func queryLogger(logger *log.Entry) tracelog.Logger {
	return tracelog.LoggerFunc(func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		entry := logger.WithFields(log.Fields(data))
		switch level {
		case tracelog.LogLevelError:
			entry.Error(msg)
		case tracelog.LogLevelWarn:
			entry.Warn(msg)
		case tracelog.LogLevelTrace:
			entry.Trace(msg)
		default:
			entry.Debug(msg)
		}
	})
}

// DB отдаёт пул для миграций и тестов.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close безопасен для nil.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx выполняет fn в транзакции; при ошибке fn транзакция откатывается.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
