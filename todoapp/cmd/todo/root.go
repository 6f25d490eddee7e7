package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskhaven/internal/kitutil"
	"github.com/ichigozero/taskhaven/todoapp"
	"github.com/ichigozero/taskhaven/todoapp/tui"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/twinj/uuid"
)

type App struct {
	ConfigPath string
	Gateway    string
	Debug      bool

	cfg     Config
	logger  log.Logger
	closers []io.Closer
}

func newRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "todo",
		Short:        "taskhaven to-do list",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  todo

  # Scriptable commands
  todo login --email alice@example.com
  todo add "Buy milk" --priority high
  todo list
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), app)
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.setup(cmd)
	}

	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		for _, c := range app.closers {
			c.Close()
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "Path to config file (default ~/.config/taskhaven/config.toml)")
	cmd.PersistentFlags().StringVar(&app.Gateway, "gateway", "", "API gateway address (overrides "+gatewayEnv+" and the config file)")
	cmd.PersistentFlags().BoolVar(&app.Debug, "debug", false, "Log debug output")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newAddCmd(app))

	return cmd
}

func (app *App) setup(cmd *cobra.Command) error {
	dir, err := configDir()
	if err != nil {
		return err
	}

	path := app.ConfigPath
	if path == "" {
		path = filepath.Join(dir, "config.toml")
	}

	app.cfg, err = loadConfig(path, dir)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("gateway") {
		app.cfg.Gateway = app.Gateway
	}

	// The TUI owns the terminal, so logs go to a file.
	if err := os.MkdirAll(filepath.Dir(app.cfg.LogFile), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(app.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	app.closers = append(app.closers, f)

	logger := kitutil.NewLogger(f, app.Debug)
	app.logger = logger

	level.Debug(logger).Log("gateway", app.cfg.Gateway, "config", path)
	return nil
}

func (app *App) session() (*todoapp.Session, error) {
	auth, err := authtransport.NewHTTPClient(strings.TrimSuffix(app.cfg.Gateway, "/")+"/auth/v1", log.With(app.logger, "component", "auth"))
	if err != nil {
		return nil, err
	}

	session := todoapp.NewSession(auth,
		todoapp.WithSessionFile(app.cfg.SessionFile),
		todoapp.WithSessionLogger(level.Warn(log.With(app.logger, "component", "session"))),
	)
	if err := session.Restore(); err != nil {
		level.Warn(app.logger).Log("during", "Restore", "err", err)
	}
	return session, nil
}

func (app *App) store(tokens todoapp.TokenSource) (*todoapp.RemoteStore, error) {
	return todoapp.NewRemoteStore(
		strings.TrimSuffix(app.cfg.Gateway, "/")+"/todo/v1",
		tokens,
		log.With(app.logger, "component", "store"),
	)
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runTUI(ctx context.Context, app *App) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	session, err := app.session()
	if err != nil {
		return err
	}
	store, err := app.store(session)
	if err != nil {
		return err
	}

	events := tui.NewEvents()
	session.Watch(events.Identity)

	controller := todoapp.NewController(store, events,
		todoapp.WithRefreshHook(events.Refresh),
		todoapp.WithLogger(log.With(app.logger, "component", "controller")),
	)
	defer controller.Close()

	level.Info(app.logger).Log("msg", "starting tui", "user_id", session.UserID())
	return tui.Run(ctx, tui.New(ctx, session, controller, events))
}

func requireSession(session *todoapp.Session) (uint64, error) {
	userID := session.UserID()
	if userID == 0 {
		return 0, errors.New("not signed in; run `todo login` first")
	}
	return userID, nil
}

func newLoginCmd(app *App) *cobra.Command {
	var (
		email  string
		signUp bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in (or sign up) and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			session, err := app.session()
			if err != nil {
				return err
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if signUp {
				err = session.SignUp(ctx, email, password)
			} else {
				err = session.SignIn(ctx, email, password)
			}
			if err != nil {
				level.Info(app.logger).Log("during", "login", "err", err)
				return errors.New(todoapp.Message(err))
			}

			if signUp {
				fmt.Fprintln(cmd.OutOrStdout(), "Account created successfully!")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged in!")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().BoolVar(&signUp, "signup", false, "Create the account first")
	return cmd
}

// readPassword reads one line from in. Interactive masking is left to the
// TUI; here the password is usually piped.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.session()
			if err != nil {
				return err
			}
			if err := session.SignOut(cmd.Context()); err != nil {
				return errors.New(todoapp.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out successfully!")
			return nil
		},
	}
}

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print your todos, incomplete first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.session()
			if err != nil {
				return err
			}
			userID, err := requireSession(session)
			if err != nil {
				return err
			}
			store, err := app.store(session)
			if err != nil {
				return err
			}

			todos, err := store.Select(cmd.Context(), todoapp.Filter{Owner: userID})
			if err != nil {
				level.Error(app.logger).Log("during", "Select", "err", err)
				return errors.New("Error fetching todos")
			}

			printTodos(cmd.OutOrStdout(), todoapp.SortTodos(todos))
			return nil
		},
	}
}

func printTodos(w io.Writer, todos []todosvc.Todo) {
	if len(todos) == 0 {
		fmt.Fprintln(w, todoapp.EmptyMessage)
		return
	}
	for _, t := range todos {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s] %-6s %s  (%s)\n", mark, t.Priority, t.Text, t.ID)
	}
}

func newAddCmd(app *App) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := todosvc.ParsePriority(priority)
			if err != nil {
				return err
			}

			session, err := app.session()
			if err != nil {
				return err
			}
			userID, err := requireSession(session)
			if err != nil {
				return err
			}
			store, err := app.store(session)
			if err != nil {
				return err
			}

			todo, ok := todoapp.NewTodo(uuid.NewV4().String(), userID, strings.Join(args, " "), p)
			if !ok {
				return errors.New("todo text is empty")
			}

			if err := store.Insert(cmd.Context(), todo); err != nil {
				level.Error(app.logger).Log("during", "Insert", "err", err)
				return errors.New("Error adding todo")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Todo added successfully!")
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", string(todosvc.PriorityLow), "Priority: low, medium or high")
	return cmd
}
