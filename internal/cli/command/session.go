package command

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairmesh-go/internal/cli/connection"
	"github.com/yndnr/pairmesh-go/internal/cli/output"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Manage paired sessions",
		Subcommands: []*cli.Command{
			{
				Name:      "request",
				Aliases:   []string{"pair"},
				Usage:     "Start a session for an identity",
				ArgsUsage: "IDENTITY",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Discard stored credentials before pairing",
					},
				},
				Action: sessionRequest,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List connected identities",
				Action:  sessionList,
			},
			{
				Name:      "info",
				Aliases:   []string{"get"},
				Usage:     "Show a connected session",
				ArgsUsage: "IDENTITY",
				Action:    sessionInfoAction,
			},
			{
				Name:      "purge",
				Usage:     "Disconnect an identity and delete its stored session",
				ArgsUsage: "IDENTITY",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation",
					},
				},
				Action: sessionPurge,
			},
		},
	}
}

func sessionRequest(c *cli.Context) error {
	identity, err := requireArg(c, "identity")
	if err != nil {
		return err
	}
	s, err := getSettings(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c, s)
	defer cancel()

	var result sessionResult
	body := map[string]any{"identity": identity, "force": c.Bool("force")}
	if err := s.client.Post(ctx, "/sessions", body, &result); err != nil {
		return err
	}

	return render(c, s, result, func(w io.Writer) error {
		t := &output.Table{Headers: []string{"IDENTITY", "STATUS"}}
		t.AddRow(result.Identity, result.Status)
		return t.Render(w)
	})
}

func sessionList(c *cli.Context) error {
	s, err := getSettings(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c, s)
	defer cancel()

	var result activeSessions
	if err := s.client.Get(ctx, "/active", &result); err != nil {
		return err
	}

	return render(c, s, result, func(w io.Writer) error {
		t := &output.Table{Headers: []string{"IDENTITY"}}
		for _, id := range result.Identities {
			t.AddRow(id)
		}
		if err := t.Render(w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\nTotal: %d sessions\n", result.Count)
		return err
	})
}

func sessionInfoAction(c *cli.Context) error {
	identity, err := requireArg(c, "identity")
	if err != nil {
		return err
	}
	s, err := getSettings(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c, s)
	defer cancel()

	var info sessionInfo
	if err := s.client.Get(ctx, connection.IdentityPath(identity), &info); err != nil {
		return err
	}
	return render(c, s, info, nil)
}

func sessionPurge(c *cli.Context) error {
	identity, err := requireArg(c, "identity")
	if err != nil {
		return err
	}
	s, err := getSettings(c)
	if err != nil {
		return err
	}

	if !c.Bool("yes") && !confirm(c, fmt.Sprintf("Purge session %s and its stored credentials?", identity)) {
		fmt.Fprintln(c.App.Writer, "Cancelled.")
		return nil
	}

	ctx, cancel := requestContext(c, s)
	defer cancel()

	var result purgeResult
	if err := s.client.Delete(ctx, connection.IdentityPath(identity), &result); err != nil {
		return err
	}

	return render(c, s, result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Session %s purged.\n", result.Identity)
		return err
	})
}
