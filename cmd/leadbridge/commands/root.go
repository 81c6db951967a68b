package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/leadbridge/internal/app"
	"github.com/florianilch/leadbridge/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Stdin, os.Stdout).Run(ctx, args)
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "leadbridge",
		Usage:  "Website lead intake for amoCRM",
		Reader: stdin,
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (stdout|otlp-grpc|otlp-http)",
			},
			&cli.StringFlag{
				Name:  "crm--base-url",
				Usage: "CRM account URL, e.g. https://example.amocrm.ru",
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "refresh token storage (file|keyring|postgres|sqlite|dynamodb|mongodb|memory)",
				Value: string(app.DefaultConfigStorageType),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			authorizeCommand(),
			statusCommand(),
			leadCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve GET /user until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "crm--auth-code",
				Usage: "authorization code used when no usable refresh token is stored",
			},
		},
		Action: serveAction,
	}
}

func authorizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "authorize",
		Usage: "exchange an authorization code and store the refresh token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "code",
				Usage: "authorization code (prompted for when omitted)",
			},
		},
		Action: authorizeAction,
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "print the state of the stored refresh token",
		Action: statusAction,
	}
}

func leadCommand() *cli.Command {
	return &cli.Command{
		Name:  "lead",
		Usage: "work with leads",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create one lead without starting the server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "contact name", Required: true},
					&cli.StringFlag{Name: "email", Usage: "contact email", Required: true},
					&cli.StringFlag{Name: "phone", Usage: "contact phone", Required: true},
				},
				Action: leadCreateAction,
			},
		},
	}
}

// setup loads config, installs logging and builds the application. The returned
// cleanup closes the application and flushes logs.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownLogs, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), observability.Options{
		Exporter: cfg.LogExporter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		_ = shutdownLogs(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	cleanup := func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := application.Close(cleanupCtx); err != nil {
			slog.ErrorContext(cleanupCtx, "failed to close application", "error", err)
		}
		_ = shutdownLogs(cleanupCtx)
	}
	return application, cleanup, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func authorizeAction(ctx context.Context, cmd *cli.Command) error {
	code := cmd.String("code")
	if code == "" {
		var err error
		code, err = promptCode(cmd.Root().Reader, cmd.Root().ErrWriter)
		if err != nil {
			return err
		}
	}

	application, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := application.Authorize(ctx, code); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, "refresh token stored")
	return err
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := application.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, st)
}

func leadCreateAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	lead, err := application.CreateLead(ctx, cmd.String("name"), cmd.String("email"), cmd.String("phone"))
	if err != nil {
		return fmt.Errorf("creating lead: %w", err)
	}
	return printJSON(cmd.Root().Writer, lead)
}

// promptCode reads the authorization code without echo when stdin is a terminal.
func promptCode(r io.Reader, prompt io.Writer) (string, error) {
	if prompt == nil {
		prompt = os.Stderr
	}
	_, _ = fmt.Fprint(prompt, "Authorization code: ")

	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading authorization code: %w", err)
		}
		return validCode(string(b))
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading authorization code: %w", err)
	}
	return validCode(line)
}

func validCode(s string) (string, error) {
	code := strings.TrimSpace(s)
	if code == "" {
		return "", errors.New("authorization code cannot be empty")
	}
	return code, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
