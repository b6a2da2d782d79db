package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bunchhieng/travelog/internal/app"
	commands "github.com/bunchhieng/travelog/internal/cli"
	"github.com/bunchhieng/travelog/internal/config"
	"github.com/bunchhieng/travelog/internal/model"
	"github.com/bunchhieng/travelog/internal/tui"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "tl",
		Usage:   "keep a journal of your travel stories",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "config file path (default: platform config directory)",
				EnvVars: []string{"TRAVELOG_CONFIG"},
			},
		},
		Action: runTUI,
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "store a bearer token after checking it with the server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "access token", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withCommands(c, false, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Login(ctx, c.String("token"))
					})
				},
			},
			{
				Name:  "logout",
				Usage: "forget the stored session",
				Action: func(c *cli.Context) error {
					return withCommands(c, false, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Logout(ctx)
					})
				},
			},
			{
				Name:  "whoami",
				Usage: "show the logged-in user",
				Action: func(c *cli.Context) error {
					return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Whoami(ctx)
					})
				},
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "list all stories",
				Action: func(c *cli.Context) error {
					return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.List(ctx)
					})
				},
			},
			{
				Name:      "search",
				Usage:     "search stories by title, text or location",
				ArgsUsage: "<query>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return fmt.Errorf("usage: tl search \"<query>\"")
					}
					return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Search(ctx, c.Args().First())
					})
				},
			},
			{
				Name:  "filter",
				Usage: "list stories visited within a date range",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "first day, YYYY-MM-DD", Required: true},
					&cli.StringFlag{Name: "to", Usage: "last day, YYYY-MM-DD", Required: true},
				},
				Action: func(c *cli.Context) error {
					from, err := commands.ParseDate(c.String("from"))
					if err != nil {
						return err
					}
					to, err := commands.ParseDate(c.String("to"))
					if err != nil {
						return err
					}
					return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Filter(ctx, from, to)
					})
				},
			},
			{
				Name:      "history",
				Usage:     "show recent searches",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "limit", Value: 10, Usage: "number of queries"}},
				ArgsUsage: " ",
				Action: func(c *cli.Context) error {
					return withCommands(c, false, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.History(ctx, c.Int("limit"))
					})
				},
			},
			{
				Name:      "show",
				Usage:     "print one story",
				ArgsUsage: "<id>",
				Action: idAction("show", func(ctx context.Context, cmds *commands.Commands, id string) error {
					return cmds.Show(ctx, id)
				}),
			},
			{
				Name:  "add",
				Usage: "create a story",
				Flags: storyFlags(),
				Action: func(c *cli.Context) error {
					flags := storyFlagValues(c)
					return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Add(ctx, flags)
					})
				},
			},
			{
				Name:      "edit",
				Usage:     "update the given fields of a story",
				ArgsUsage: "<id>",
				Flags:     storyFlags(),
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return fmt.Errorf("usage: tl edit <id> [flags]")
					}
					id, err := commands.ParseID(c.Args().First())
					if err != nil {
						return err
					}
					flags := storyFlagValues(c)
					return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Edit(ctx, id, flags)
					})
				},
			},
			{
				Name:      "fav",
				Usage:     "toggle the favourite flag of a story",
				ArgsUsage: "<id>",
				Action: idAction("fav", func(ctx context.Context, cmds *commands.Commands, id string) error {
					return cmds.Fav(ctx, id)
				}),
			},
			{
				Name:      "rm",
				Usage:     "delete one or more stories",
				ArgsUsage: "<id> [id...]",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return fmt.Errorf("usage: tl rm <id> [id...]")
					}
					ids := c.Args().Slice()
					return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
						return cmds.Remove(ctx, ids...)
					})
				},
			},
			{
				Name:      "rm-image",
				Usage:     "delete the image of a story",
				ArgsUsage: "<id>",
				Action: idAction("rm-image", func(ctx context.Context, cmds *commands.Commands, id string) error {
					return cmds.RemoveImage(ctx, id)
				}),
			},
			{
				Name:   "tui",
				Usage:  "open the interactive story list (default)",
				Action: runTUI,
			},
			{
				Name:  "config",
				Usage: "manage the configuration file",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "write a config file with the default settings",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
						},
						Action: configInit,
					},
				},
			},
		},
	}
}

func storyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "story title"},
		&cli.StringFlag{Name: "story", Aliases: []string{"s"}, Usage: "story text"},
		&cli.StringFlag{Name: "locations", Aliases: []string{"l"}, Usage: "comma-separated visited locations"},
		&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "visited date, YYYY-MM-DD (default: today)"},
		&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "path to an image to upload"},
	}
}

// storyFlagValues keeps only the flags given on the command line so an edit
// leaves the rest of the story alone.
func storyFlagValues(c *cli.Context) commands.StoryFlags {
	get := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	return commands.StoryFlags{
		Title:     get("title"),
		Story:     get("story"),
		Locations: get("locations"),
		Date:      get("date"),
		Image:     get("image"),
	}
}

func idAction(name string, fn func(ctx context.Context, cmds *commands.Commands, id string) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() == 0 {
			return fmt.Errorf("usage: tl %s <id>", name)
		}
		id, err := commands.ParseID(c.Args().First())
		if err != nil {
			return err
		}
		return withCommands(c, true, func(ctx context.Context, cmds *commands.Commands) error {
			return fn(ctx, cmds, id)
		})
	}
}

// withCommands opens the app for one command. auth loads the stored token
// first; a rejected token wipes the local session.
func withCommands(c *cli.Context, auth bool, fn func(ctx context.Context, cmds *commands.Commands) error) error {
	a, err := app.New(c.String("config"))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := c.Context
	if auth {
		if err := a.Authenticate(ctx); err != nil {
			return err
		}
	}

	cmds := commands.NewCommands(a.Client, a.Storage, os.Stdout,
		commands.WithLogger(a.Log),
		commands.WithEditorOptions(a.EditorOptions()...),
	)
	return a.HandleUnauthorized(ctx, fn(ctx, cmds))
}

func runTUI(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if cfg.Log.File == "" {
		// Keep log lines off the screen.
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		cfg.Log.File = filepath.Join(dir, "tl.log")
	}

	a, err := app.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Authenticate(c.Context); err != nil {
		return err
	}

	loggedOut, err := tui.Run(a.Client, a.Storage, a.Log, a.EditorOptions()...)
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	if loggedOut {
		return a.HandleUnauthorized(c.Context, model.ErrUnauthorized)
	}
	return nil
}

func configInit(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.toml")
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	if err := config.Save(path, config.Defaults()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
