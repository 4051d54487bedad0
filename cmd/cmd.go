// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/studyctl/internal/formatter"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

func planFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "plan",
		Usage:    "Study plan ID",
		Required: true,
	}
}

func strategyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "strategy",
		Usage: "Job monitoring strategy: auto, sse or polling (default from config)",
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the backend session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in with username and password; session cookies are saved locally",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Account username",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password (read from stdin when omitted)",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "End the session and remove saved cookies",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show the authenticated user",
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Renew the access cookie",
				Action: r.AuthRefresh,
			},
		},
	}
}

// chatCommand handles assistant conversations
func chatCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the study assistant",
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Send a message and print the answer",
				ArgsUsage: "<message>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-stream",
						Usage: "Wait for the complete answer instead of streaming it",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save the conversation to the database",
					},
					&cli.StringFlag{
						Name:  "resume",
						Usage: "Continue a saved conversation by ID",
					},
				},
				Action: r.ChatSend,
			},
			{
				Name:   "tui",
				Usage:  "Interactive chat",
				Flags:  []cli.Flag{noStreamFlag()},
				Action: r.TUI,
			},
			{
				Name:  "history",
				Usage: "Saved conversations",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List saved conversations",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "limit",
								Usage: "Maximum number of conversations",
								Value: 20,
							},
							&cli.StringFlag{
								Name:  "session",
								Usage: "Only conversations of this chat session",
							},
							jsonFlag(),
						},
						Action: r.HistoryList,
					},
					{
						Name:      "show",
						Usage:     "Print a saved conversation",
						Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
						Action:    r.HistoryShow,
					},
					{
						Name:      "export",
						Usage:     "Export a saved conversation to a file",
						Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "format",
								Aliases: []string{"f"},
								Usage:   "Export format: markdown, txt, csv or json",
								Value:   string(formatter.FormatMarkdown),
							},
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "Output file path (default: conversation_<n>.<ext>)",
							},
						},
						Action: r.HistoryExport,
					},
					{
						Name:      "delete",
						Usage:     "Delete a saved conversation",
						Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
						Action:    r.HistoryDelete,
					},
				},
			},
		},
	}
}

// jobsCommand handles background job monitoring
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Follow background AI jobs",
		Commands: []*cli.Command{
			{
				Name:      "watch",
				Usage:     "Follow a job until it finishes",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					strategyFlag(),
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Polling interval (default from config)",
					},
					jsonFlag(),
				},
				Action: r.JobsWatch,
			},
			{
				Name:      "status",
				Usage:     "Check a job once",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.JobsStatus,
			},
			{
				Name:  "history",
				Usage: "List jobs seen by this machine",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status: idle, running, succeeded or failed",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Filter by kind: day, section or plan",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs",
						Value: 20,
					},
					jsonFlag(),
				},
				Action: r.JobsHistory,
			},
		},
	}
}

// plansCommand handles study plan operations
func plansCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "plans",
		Aliases: []string{"plan"},
		Usage:   "Study plan operations",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List study plans",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlansList,
			},
			{
				Name:      "show",
				Usage:     "Show a plan with its days and tasks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.PlansShow,
			},
			{
				Name:      "watch",
				Usage:     "Wait for a plan's pending generation job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{strategyFlag()},
				Action:    r.PlansWatch,
			},
			{
				Name:  "generate-day",
				Usage: "Generate the tasks of one day",
				Flags: []cli.Flag{
					planFlag(),
					&cli.StringFlag{
						Name:     "day",
						Usage:    "Day ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "Replace existing tasks",
					},
					&cli.BoolFlag{
						Name:  "no-watch",
						Usage: "Print the job ID and return without waiting",
					},
					strategyFlag(),
				},
				Action: r.PlansGenerateDay,
			},
			{
				Name:  "extend",
				Usage: "Request more tasks for a section or a day's section",
				Flags: []cli.Flag{
					planFlag(),
					&cli.StringFlag{
						Name:  "section",
						Usage: "Section ID",
					},
					&cli.StringFlag{
						Name:  "day",
						Usage: "Day ID whose section is extended",
					},
					strategyFlag(),
				},
				Action: r.PlansExtend,
			},
			{
				Name:  "bulk-generate",
				Usage: "Generate several days concurrently",
				Flags: []cli.Flag{
					planFlag(),
					&cli.StringSliceFlag{
						Name:  "day",
						Usage: "Day ID (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Generate every day that has no tasks yet",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent workers",
						Value: 3,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Generation requests per second",
						Value: 1,
					},
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "Replace existing tasks",
					},
					strategyFlag(),
				},
				Action: r.PlansBulkGenerate,
			},
		},
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the backend API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the response",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

func noStreamFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "no-stream",
		Usage: "Start with streaming disabled",
	}
}

// tuiCommand returns the top-level TUI command for interactive chat.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive chat",
		Flags:   []cli.Flag{noStreamFlag()},
		Action:  r.TUI,
	}
}
