// Command migrate применяет встроенные SQL-миграции сервиса заказов.
//
//	migrate [-dsn DSN] [-timeout 30s] up [steps]
//	migrate [-dsn DSN] down [steps]
//	migrate [-dsn DSN] status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/storage/postgres"
)

const envPostgresDSN = "ORDERS_POSTGRES_DSN"

var errUnsupportedDirection = errors.New("unsupported direction (use up|down|status)")

// command — разобранная команда: направление и число шагов (0 — по умолчанию).
type command struct {
	direction string
	steps     int
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("failed to read .env")
	}
	os.Exit(cli(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv))
}

// cli возвращает код выхода: 0 — успех, 1 — ошибка миграции, 2 — неверные аргументы.
func cli(args []string, stdout, stderr io.Writer, lookup func(string) (string, bool)) int {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(stderr)
	dsn := flags.String("dsn", "", "PostgreSQL DSN, defaults to $"+envPostgresDSN)
	timeout := flags.Duration("timeout", 30*time.Second, "overall deadline")
	flags.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "usage: migrate [flags] up|down|status [steps]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cmd, err := parseCommand(flags.Args())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "migrate: %v\n", err)
		flags.Usage()
		return 2
	}
	if strings.TrimSpace(*dsn) == "" {
		*dsn, _ = lookup(envPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := run(ctx, stdout, cmd, *dsn); err != nil {
		_, _ = fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	return 0
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{direction: "up"}, nil
	}
	if len(args) > 2 {
		return command{}, fmt.Errorf("unexpected arguments %q", args[2:])
	}

	cmd := command{direction: strings.ToLower(args[0])}
	switch cmd.direction {
	case "up", "down":
	case "status":
		if len(args) == 2 {
			return command{}, errors.New("status does not take steps")
		}
	default:
		return command{}, fmt.Errorf("%w: %q", errUnsupportedDirection, args[0])
	}

	if len(args) == 2 {
		steps, err := strconv.Atoi(args[1])
		if err != nil || steps < 0 {
			return command{}, fmt.Errorf("steps must be a non-negative integer, got %q", args[1])
		}
		cmd.steps = steps
	}
	return cmd, nil
}

func run(ctx context.Context, out io.Writer, cmd command, dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("%s or -dsn is required", envPostgresDSN)
	}

	store, err := postgres.Open(ctx, postgres.Config{DSN: dsn, ApplicationName: "orders-migrate"},
		log.WithField("component", "migrate"))
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd.direction {
	case "up":
		err = store.MigrateUp(ctx, cmd.steps)
	case "down":
		err = store.MigrateDown(ctx, cmd.steps)
	}
	if err != nil {
		return err
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s: version=%d applied=%d pending=%d\n",
		cmd.direction, state.Version, state.Applied, state.Pending)
	return err
}
