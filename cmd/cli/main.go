// Command cli is the tokenkeeper operator tool.
//
// Usage:
//
//	cli migrate
//	cli sweep
//	cli create-user -email admin@example.com -role ADMIN -first Ada -last Admin
//
// Server configuration flags, CONFIG and the environment are honoured the
// same way as by the server binary.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, rest := args[0], args[1:]
	if !knownCommand(cmd) {
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr)
		return 2
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if err := checkConfig(cmd, cfg); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		fmt.Fprintf(stderr, "db: %v\n", err)
		return 1
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	logger := logging.New(stderr, cfg.LogLevel)

	switch cmd {
	case cmdMigrate:
		err = runMigrate(ctx, rm, db, stdout)
	case cmdSweep:
		err = runSweep(ctx, services.NewSweeper(rm.RefreshTokens(db), cfg.SweepInterval, nil, logger, nil), stdout)
	case cmdCreateUser:
		var in createUserArgs
		in, err = parseCreateUserArgs(rest)
		if err == nil {
			err = runCreateUser(ctx, services.NewUserService(db, rm, cfg, services.WithLogger(logger)), in, stdout)
		}
	}

	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: cli <migrate|sweep|create-user> [flags]")
}
