package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairmesh-go/internal/cli/config"
	"github.com/yndnr/pairmesh-go/internal/cli/connection"
	"github.com/yndnr/pairmesh-go/internal/cli/output"
	"github.com/yndnr/pairmesh-go/internal/infra/buildinfo"
)

const settingsKey = "settings"

// settings are resolved once per invocation from the config file and flags.
type settings struct {
	client  *connection.HTTPClient
	format  output.Format
	timeout time.Duration
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "pairmesh-cli",
		Usage:                "Operate a pairmesh server",
		Version:              buildinfo.Get().String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			SessionCommand(),
			SystemCommand(),
			VersionCommand(),
		},
		Before: loadSettings,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "pairmesh server address (e.g., localhost:5000)",
			EnvVars: []string{"PAIRMESH_SERVER"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			EnvVars: []string{"PAIRMESH_OUTPUT"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI config file",
			EnvVars: []string{"PAIRMESH_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
	}
}

// loadSettings merges the config file with flags; flags win.
func loadSettings(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	server := cfg.Server
	if c.IsSet("server") {
		server = c.String("server")
	}

	format, err := output.ParseFormat(cfg.Output)
	if c.IsSet("output") {
		format, err = output.ParseFormat(c.String("output"))
	}
	if err != nil {
		return err
	}

	timeout := connection.DefaultTimeout
	if cfg.Timeout != "" {
		if timeout, err = time.ParseDuration(cfg.Timeout); err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
	}
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[settingsKey] = &settings{
		client:  connection.NewHTTPClient(server, timeout),
		format:  format,
		timeout: timeout,
	}
	return nil
}

func getSettings(c *cli.Context) (*settings, error) {
	s, ok := c.App.Metadata[settingsKey].(*settings)
	if !ok {
		return nil, errors.New("cli settings not initialised")
	}
	return s, nil
}

// requestContext bounds one API call.
func requestContext(c *cli.Context, s *settings) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, s.timeout)
}

// render writes data in the selected format. table, when non-nil, replaces
// the generic table rendering.
func render(c *cli.Context, s *settings, data any, table func(w io.Writer) error) error {
	if s.format == output.FormatTable && table != nil {
		return table(c.App.Writer)
	}
	return output.NewFormatter(s.format).Format(c.App.Writer, data)
}

// requireArg returns the first positional argument.
func requireArg(c *cli.Context, name string) (string, error) {
	v := strings.TrimSpace(c.Args().First())
	if v == "" {
		return "", fmt.Errorf("%s required", name)
	}
	return v, nil
}

// confirm asks a yes/no question on the app's reader.
func confirm(c *cli.Context, prompt string) bool {
	fmt.Fprintf(c.App.Writer, "%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
