package command

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairmesh-go/internal/cli/connection"
	"github.com/yndnr/pairmesh-go/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status commands",
		Subcommands: []*cli.Command{
			{
				Name:   "ping",
				Usage:  "Show liveness and the live session count",
				Action: systemPing,
			},
			{
				Name:   "health",
				Usage:  "Check server health and readiness",
				Action: systemHealth,
			},
		},
	}
}

// VersionCommand prints client build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show client version information",
		Action: func(c *cli.Context) error {
			s, err := getSettings(c)
			if err != nil {
				return err
			}
			return render(c, s, buildinfo.Get(), nil)
		},
	}
}

func systemPing(c *cli.Context) error {
	s, err := getSettings(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c, s)
	defer cancel()

	var result pingResult
	if err := s.client.Get(ctx, "/ping", &result); err != nil {
		return err
	}

	return render(c, s, result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s (%s), %d active sessions\n", result.Message, result.Status, result.ActiveCount)
		return err
	})
}

// systemHealth reports /health and /ready. It fails when the server is not
// ready so scripts can rely on the exit code.
func systemHealth(c *cli.Context) error {
	s, err := getSettings(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c, s)
	defer cancel()

	var health, ready statusResult
	if err := s.client.Get(ctx, "/health", &health); err != nil {
		return fmt.Errorf("server unhealthy: %w", err)
	}

	result := healthResult{Health: health.Status, Ready: "ready"}
	readyErr := s.client.Get(ctx, "/ready", &ready)
	if readyErr != nil {
		result.Ready = "not ready"
		var apiErr *connection.APIError
		if !errors.As(readyErr, &apiErr) {
			return readyErr
		}
	}

	if err := render(c, s, result, nil); err != nil {
		return err
	}
	if readyErr != nil {
		return fmt.Errorf("server not ready: %w", readyErr)
	}
	return nil
}
