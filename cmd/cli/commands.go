package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

const (
	cmdMigrate    = "migrate"
	cmdSweep      = "sweep"
	cmdCreateUser = "create-user"
)

func knownCommand(cmd string) bool {
	switch cmd {
	case cmdMigrate, cmdSweep, cmdCreateUser:
		return true
	}
	return false
}

// checkConfig validates the settings cmd relies on. The CLI never signs
// tokens, so the server's secret checks do not apply.
func checkConfig(cmd string, cfg *config.Config) error {
	if cmd == cmdCreateUser {
		return cfg.ValidateHashCosts()
	}
	return nil
}

type migrator interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
}

type sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type userCreator interface {
	CreateUser(ctx context.Context, in services.RegisterInput, role string) (*models.User, error)
}

func runMigrate(ctx context.Context, m migrator, db *sql.DB, w io.Writer) error {
	if err := m.RunMigrations(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(w, "migrations applied")
	return nil
}

func runSweep(ctx context.Context, s sweeper, w io.Writer) error {
	n, err := s.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "revoked=%d\n", n)
	return nil
}

type createUserArgs struct {
	Email     string
	Role      string
	FirstName string
	LastName  string
}

var createUserFlags = []string{"-email", "-role", "-first", "-last"}

// parseCreateUserArgs reads the create-user flags, ignoring server
// configuration flags that may share the command line.
func parseCreateUserArgs(args []string) (createUserArgs, error) {
	var a createUserArgs

	fs := flag.NewFlagSet(cmdCreateUser, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&a.Email, "email", "", "account email")
	fs.StringVar(&a.Role, "role", common.RoleAdmin, "USER or ADMIN")
	fs.StringVar(&a.FirstName, "first", "Admin", "first name")
	fs.StringVar(&a.LastName, "last", "User", "last name")

	if err := fs.Parse(flagx.FilterArgs(args, createUserFlags)); err != nil {
		return a, err
	}

	if a.Email == "" {
		return a, errors.New("-email is required")
	}
	if a.Role != common.RoleUser && a.Role != common.RoleAdmin {
		return a, fmt.Errorf("unknown role %q", a.Role)
	}
	return a, nil
}

func runCreateUser(ctx context.Context, svc userCreator, a createUserArgs, w io.Writer) error {
	password, confirm, err := promptPassword(w)
	if err != nil {
		return err
	}

	user, err := svc.CreateUser(ctx, services.RegisterInput{
		Email:           a.Email,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		Password:        password,
		ConfirmPassword: confirm,
	}, a.Role)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "created %s %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}
