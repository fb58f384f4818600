// gradebook-admin runs maintenance tasks against the gradebook database:
// account creation, imports, the yearly class promotion and an event log dump.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/labstack/gommon/log"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/pkg/errors"

	auth "github.com/coachdiary/gradebook/internal/auth/middleware"
	"github.com/coachdiary/gradebook/internal/config"
	"github.com/coachdiary/gradebook/internal/db"
	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/roster"
	syncx "github.com/coachdiary/gradebook/internal/sync"
	"github.com/coachdiary/gradebook/internal/transfer"
)

type app struct {
	driver, dsn, siteID, logLevel string

	db     *sql.DB
	eng    *gradebook.Engine
	roster *roster.Service
	users  *auth.UserStore
	log    *log.Logger
}

func (a *app) open(ctx context.Context) error {
	drv, err := db.ParseDriver(a.driver)
	if err != nil {
		return err
	}
	a.db, err = db.Open(ctx, drv, a.dsn)
	if err != nil {
		return errors.Wrap(err, "open db")
	}
	a.log = log.New("admin")
	a.log.SetLevel(config.Config{LogLevel: a.logLevel}.Level())
	a.eng = gradebook.New(gradebook.NewSQLStore(a.db), gradebook.WithSiteID(a.siteID), gradebook.WithLogger(a.log))
	a.roster = roster.NewService(roster.NewSQLStore(a.db), a.eng, a.log)
	a.users = auth.NewUserStore(a.db)
	return nil
}

// run opens the database around fn.
func (a *app) run(fn func(ctx context.Context, args []string) error) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if err := a.open(ctx); err != nil {
			return err
		}
		defer a.db.Close()
		return fn(ctx, args)
	}
}

func (a *app) teacherID(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, errors.New("-teacher is required")
	}
	u, err := a.users.FindByUsername(ctx, username)
	if err != nil {
		return 0, errors.Wrapf(err, "teacher %q", username)
	}
	if u.Role != auth.RoleTeacher {
		return 0, errors.Errorf("%q is a %s, not a teacher", username, u.Role)
	}
	return u.ID, nil
}

func main() {
	defaults := config.FromEnv()
	a := &app{}

	rootFS := flag.NewFlagSet("gradebook-admin", flag.ExitOnError)
	rootFS.StringVar(&a.driver, "db-driver", defaults.DBDriver, "sqlite|postgres")
	rootFS.StringVar(&a.dsn, "db-dsn", defaults.DBDSN, "database DSN")
	rootFS.StringVar(&a.siteID, "site-id", defaults.SiteID, "site id recorded in the event log")
	rootFS.StringVar(&a.logLevel, "log-level", defaults.LogLevel, "debug|info|warn|error|off")

	adduserFS := flag.NewFlagSet("gradebook-admin adduser", flag.ExitOnError)
	var (
		role     = adduserFS.String("role", auth.RoleTeacher, "teacher|student|admin")
		password = adduserFS.String("password", "", "initial password")
		invite   = adduserFS.String("invite", "", "invitation code of the student record to link (students only)")
	)
	adduser := &ffcli.Command{
		Name:       "adduser",
		ShortUsage: "gradebook-admin adduser -password P [-role R] [-invite CODE] <username>",
		ShortHelp:  "create a login account",
		FlagSet:    adduserFS,
		Exec: a.run(func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return flag.ErrHelp
			}
			u, err := a.users.Create(ctx, args[0], *password, *role)
			if err != nil {
				return err
			}
			fmt.Printf("user %d %s (%s)\n", u.ID, u.Username, u.Role)
			if *invite == "" {
				return nil
			}
			if u.Role != auth.RoleStudent {
				return errors.New("-invite only applies to students")
			}
			st, err := a.roster.LinkUser(ctx, *invite, u.ID)
			if err != nil {
				return err
			}
			fmt.Printf("linked to student %d %s (%d%s)\n", st.ID, st.FullName, st.ClassNumber, st.ClassName)
			return nil
		}),
	}

	importFS := flag.NewFlagSet("gradebook-admin import", flag.ExitOnError)
	importTeacher := importFS.String("teacher", "", "username of the owning teacher")
	importCmd := &ffcli.Command{
		Name:       "import",
		ShortUsage: "gradebook-admin import -teacher T <file.json|->",
		ShortHelp:  "load standards and results from a transfer document",
		FlagSet:    importFS,
		Exec: a.run(func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return flag.ErrHelp
			}
			owner, err := a.teacherID(ctx, *importTeacher)
			if err != nil {
				return err
			}
			var doc []byte
			if args[0] == "-" {
				doc, err = io.ReadAll(os.Stdin)
			} else {
				doc, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			rep, err := transfer.NewImporter(a.eng, a.log).Import(ctx, owner, doc)
			if err != nil {
				return err
			}
			fmt.Printf("standards created=%d merged=%d, results=%d\n", rep.StandardsCreated, rep.StandardsMerged, rep.Results)
			return nil
		}),
	}

	promoteFS := flag.NewFlagSet("gradebook-admin promote", flag.ExitOnError)
	promoteTeacher := promoteFS.String("teacher", "", "username of the teacher whose classes move up")
	promote := &ffcli.Command{
		Name:       "promote",
		ShortUsage: "gradebook-admin promote -teacher T",
		ShortHelp:  "move every active class up one year",
		FlagSet:    promoteFS,
		Exec: a.run(func(ctx context.Context, _ []string) error {
			owner, err := a.teacherID(ctx, *promoteTeacher)
			if err != nil {
				return err
			}
			rep, err := a.roster.PromoteClasses(ctx, owner)
			if err != nil {
				return err
			}
			fmt.Printf("archived=%d promoted=%d students=%d placeholders=%d\n",
				rep.Archived, rep.Promoted, rep.Students, rep.Placeholders)
			return nil
		}),
	}

	eventsFS := flag.NewFlagSet("gradebook-admin events", flag.ExitOnError)
	var (
		since = eventsFS.Int64("since", 0, "print events after this sequence number")
		limit = eventsFS.Int("limit", 100, "maximum number of events")
	)
	events := &ffcli.Command{
		Name:       "events",
		ShortUsage: "gradebook-admin events [-since N] [-limit N]",
		ShortHelp:  "dump the reconciliation event log",
		FlagSet:    eventsFS,
		Exec: a.run(func(ctx context.Context, _ []string) error {
			evs, err := syncx.NewEventRepo(a.db).Since(ctx, *since, *limit)
			if err != nil {
				return err
			}
			for _, e := range evs {
				fmt.Println(strconv.FormatInt(e.Seq, 10), e.SiteID, e.Type, e.Key, e.DataJSON)
			}
			return nil
		}),
	}

	root := &ffcli.Command{
		ShortUsage:  "gradebook-admin [flags] <subcommand> [flags] [args]",
		FlagSet:     rootFS,
		Options:     []ff.Option{ff.WithEnvVarPrefix(config.EnvPrefix)},
		Subcommands: []*ffcli.Command{adduser, importCmd, promote, events},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "gradebook-admin: %v\n", err)
		os.Exit(1)
	}
}
