// Command hostelctl maintains staff accounts in the sqlite card store.
//
//	hostelctl [-db path] useradd -name NAME [-perms create,edit,delete,admin]
//	hostelctl [-db path] passwd  -name NAME
//	hostelctl [-db path] perms   -name NAME -perms LIST
//
// Passwords are read from HOSTEL_PASSWORD or, when unset, from the first line
// of standard input.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/guard-e/hostel/internal/auth"
	"github.com/guard-e/hostel/internal/db"
	"github.com/guard-e/hostel/internal/hostel/access"
	gwsqlite "github.com/guard-e/hostel/internal/hostel/gateway/sqlite"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "hostelctl: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: hostelctl [-db path] useradd|passwd|perms -name NAME [-perms LIST]")

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("hostelctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dbPath := fs.String("db", envOr("HOSTEL_DB_PATH", "./data/hostel.db"), "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	sub := flag.NewFlagSet(cmd, flag.ContinueOnError)
	sub.SetOutput(io.Discard)
	name := sub.String("name", "", "account name")
	perms := sub.String("perms", "", "comma-separated capabilities: create,edit,delete,admin")
	if err := sub.Parse(rest); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return errUsage
	}

	sqlDB, err := db.Open(ctx, db.Config{Path: *dbPath})
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	store := gwsqlite.New(sqlDB, db.NewWorker(sqlDB))
	defer store.Close()

	switch cmd {
	case "useradd":
		flags, err := parsePerms(*perms)
		if err != nil {
			return err
		}
		hash, err := readHash(stdin)
		if err != nil {
			return err
		}
		id, err := store.CreateUser(ctx, *name, flags, 0, hash)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created %s (id %d, flags %d)\n", *name, id, flags)

	case "passwd":
		hash, err := readHash(stdin)
		if err != nil {
			return err
		}
		if err := store.SetPassword(ctx, *name, hash); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "password changed for %s\n", *name)

	case "perms":
		flags, err := parsePerms(*perms)
		if err != nil {
			return err
		}
		if err := store.SetFlags(ctx, *name, flags); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s now has %v\n", *name, access.Decode(flags, 0).Granted())

	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
	return nil
}

// parsePerms turns "create,edit" into a flags word. View is implied.
func parsePerms(list string) (int, error) {
	flags := 0
	for _, p := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "", "view":
		case "create":
			flags |= access.FlagCreate
		case "edit":
			flags |= access.FlagEdit
		case "delete":
			flags |= access.FlagDelete
		case "admin":
			flags |= access.FlagAdmin
		default:
			return 0, fmt.Errorf("unknown permission %q", p)
		}
	}
	return flags, nil
}

func readHash(stdin io.Reader) (string, error) {
	pw := os.Getenv("HOSTEL_PASSWORD")
	if pw == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	return auth.HashPassword(pw)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
