package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
)

// Migrator is the part of *migrate.Migrate the commands use.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	module := flag.String("module", "engage", "Module to migrate (folder under -dir)")
	command := flag.String("cmd", "up", "Migration command (up, down, steps N, version, force N)")
	dir := flag.String("dir", "migrations", "Root directory holding one folder per module")
	flag.Parse()

	cfg := config.LoadConfig()
	source := fmt.Sprintf("file://%s/%s", *dir, *module)

	log.Printf("🔄 Migrating module %s from %s", *module, source)
	log.Printf("💾 Database: %s", maskDatabaseURL(cfg.DatabaseURL))

	m, err := migrate.New(source, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to create migrate instance: %v", err)
	}
	defer m.Close()

	msg, err := run(m, *command, flag.Args())
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
	log.Printf("✅ %s", msg)
}

// run executes one command and returns a summary line.
func run(m Migrator, command string, args []string) (string, error) {
	switch command {
	case "up":
		if err := ignoreNoChange(m.Up()); err != nil {
			return "", err
		}
		return "migrations applied", nil

	case "down":
		if err := ignoreNoChange(m.Down()); err != nil {
			return "", err
		}
		return "migrations rolled back", nil

	case "steps":
		n, err := numberArg(args)
		if err != nil {
			return "", err
		}
		if err := ignoreNoChange(m.Steps(n)); err != nil {
			return "", err
		}
		return fmt.Sprintf("applied %d step(s)", n), nil

	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return "no migration applied yet", nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("version %d (dirty: %t)", v, dirty), nil

	case "force":
		v, err := numberArg(args)
		if err != nil {
			return "", err
		}
		if err := m.Force(v); err != nil {
			return "", err
		}
		return fmt.Sprintf("forced version %d", v), nil

	default:
		return "", fmt.Errorf("unknown command %q (use: up, down, steps, version, force)", command)
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func numberArg(args []string) (int, error) {
	if len(args) < 1 {
		return 0, errors.New("a number argument is required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", args[0])
	}
	return n, nil
}

// maskDatabaseURL hides the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
