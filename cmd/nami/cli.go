package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/web"
)

// newCLIApp creates the CLI application with all commands.
// A nil env is only valid for --help and --version.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "nami",
		Usage:   "Ride the wave of a gambling urge",
		Version: Version,
		Commands: []*cli.Command{
			urgeCmd(e),
			moodCmd(e),
			statsCmd(e),
			historyCmd(e),
			chatCmd(e),
			strategiesCmd(),
			settingsCmd(e),
			exportCmd(e),
			importCmd(e),
			serveCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// urgeCmd creates the urge command.
func urgeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "urge",
		Usage: "Record an urge episode",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "strength", Aliases: []string{"s"}, Usage: "Urge strength 0-10 (default 5)"},
			&cli.StringSliceFlag{Name: "trigger", Aliases: []string{"t"}, Usage: "Trigger id or label (repeatable)"},
			&cli.StringFlag{Name: "strategy", Usage: "Coping strategy id (see 'nami strategies')"},
			&cli.StringFlag{Name: "saved", Usage: "Money not spent; invalid input counts as 0"},
			&cli.StringFlag{Name: "memo", Aliases: []string{"m"}, Usage: "Free-form note"},
			&cli.IntFlag{Name: "effectiveness", Aliases: []string{"e"}, Usage: "How well it worked, -3..3"},
			&cli.StringFlag{Name: "start", Usage: "Start time, RFC 3339 (default now)"},
		},
		Action: func(c *cli.Context) error {
			start, err := parseTimeFlag(c, "start")
			if err != nil {
				return outputError(err)
			}

			input := ops.RecordUrgeInput{
				Triggers:      c.StringSlice("trigger"),
				Strategy:      c.String("strategy"),
				SavedAmount:   c.String("saved"),
				Memo:          c.String("memo"),
				Effectiveness: c.Int("effectiveness"),
				StartTime:     start,
			}
			if c.IsSet("strength") {
				n := c.Int("strength")
				input.Strength = &n
			}

			output, err := ops.RecordUrge(c.Context, e.store, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// moodCmd creates the mood command.
func moodCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "mood",
		Usage: "Log how you feel right now",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "icon", Aliases: []string{"i"}, Usage: "Mood emoji (default 😊)"},
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Body sensation"},
			&cli.StringFlag{Name: "color", Usage: "Hex color tag (default #63B3ED)"},
			&cli.IntFlag{Name: "strength", Aliases: []string{"s"}, Usage: "Intensity 0-10 (default 5)"},
			&cli.StringFlag{Name: "memo", Aliases: []string{"m"}, Usage: "Free-form note"},
		},
		Action: func(c *cli.Context) error {
			input := ops.LogMoodInput{
				MoodIcon:      c.String("icon"),
				BodySensation: c.String("body"),
				Color:         c.String("color"),
				Memo:          c.String("memo"),
			}
			if c.IsSet("strength") {
				n := c.Int("strength")
				input.Strength = &n
			}

			output, err := ops.LogMood(c.Context, e.store, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show streak, money saved, triggers and patterns",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "now", Usage: "Reference time, RFC 3339 (default now)"},
		},
		Action: func(c *cli.Context) error {
			now, err := parseTimeFlag(c, "now")
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Stats(e.store, e.cfg, ops.StatsInput{Now: now})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List urges and moods, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Only urge or mood"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(e.store, ops.HistoryInput{
				Kind:   c.String("kind"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// chatCmd creates the chat command.
func chatCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Talk to the assistant (message from args or stdin)",
		ArgsUsage: "[message]",
		Subcommands: []*cli.Command{
			{
				Name:  "history",
				Usage: "Show the conversation",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max messages to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Messages to skip from the newest"},
				},
				Action: func(c *cli.Context) error {
					return outputJSON(ops.ChatHistory(e.store, ops.ChatHistoryInput{
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					}))
				},
			},
		},
		Action: func(c *cli.Context) error {
			message := strings.Join(c.Args().Slice(), " ")
			if message == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				message = text
			}

			output, err := ops.SendChat(c.Context, e.relay, ops.SendChatInput{Message: message})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// strategiesCmd creates the strategies command.
func strategiesCmd() *cli.Command {
	return &cli.Command{
		Name:  "strategies",
		Usage: "List the coping strategies",
		Action: func(c *cli.Context) error {
			return outputJSON(ops.ListStrategies())
		},
	}
}

// settingsCmd creates the settings command.
func settingsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the current settings",
				Action: func(c *cli.Context) error {
					return outputJSON(ops.GetSettings(e.store))
				},
			},
			{
				Name:      "set",
				Usage:     "Change the nickname",
				ArgsUsage: "<nickname>",
				Action: func(c *cli.Context) error {
					output, err := ops.UpdateSettings(c.Context, e.store, ops.UpdateSettingsInput{
						Nickname: c.Args().First(),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all data to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output .jsonl path (default ~/.nami/exports/<nickname>-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, e.store, e.policy, ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import data from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Input .jsonl path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "append", Usage: "Import mode: append|replace"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, e.store, e.policy, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind to"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port < 1 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 1 and 65535"))
			}

			srv, err := web.NewServer(web.Deps{
				Store:   e.store,
				Relay:   e.relay,
				Metrics: e.metrics,
				Log:     e.log,
			}, e.cfg, Version, c.String("bind"), port)
			if err != nil {
				return outputError(err)
			}
			return web.Run(srv, e.log)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var nErr *errors.NamiError
	if stderrors.As(err, &nErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", nErr.Code, nErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseTimeFlag parses an optional RFC 3339 flag. Unset means zero.
func parseTimeFlag(c *cli.Context, name string) (time.Time, error) {
	s := strings.TrimSpace(c.String(name))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.NewInvalidRequest(fmt.Sprintf("--%s must be an RFC 3339 time", name))
	}
	return t, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
