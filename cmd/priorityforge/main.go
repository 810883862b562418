package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"priorityforge/internal/app"
	"priorityforge/internal/config"
	"priorityforge/internal/tui"
	"priorityforge/internal/utils"
)

// cli carries the global flags and the engine, opened lazily by the
// commands that need it.
type cli struct {
	configPath string
	verbose    bool

	engine *app.Engine
}

// loadConfig reads the configuration selected by --config.
func (c *cli) loadConfig() (*config.Config, error) {
	config.SetCustomConfigPath(c.configPath)
	return config.Load()
}

// open builds the engine and performs the initial load. A failed remote
// load is reported as a warning; the commands then work on local tasks.
func (c *cli) open(ctx context.Context) (*app.Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	e, err := app.New(cfg, app.Options{})
	if err != nil {
		return nil, err
	}
	if err := e.Open(ctx); err != nil {
		utils.Warnf("Showing local tasks: %s", utils.UserMessage(err))
	}
	c.engine = e
	return e, nil
}

func (c *cli) close() {
	if c.engine == nil {
		return
	}
	if err := c.engine.Shutdown(); err != nil {
		utils.Warnf("Shutdown: %v", err)
	}
	c.engine = nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "priorityforge",
		Short: "Prioritized task list with undoable completion",
		Long: `priorityforge keeps a task list ordered by a priority score computed from
urgency, difficulty and due date.

Without a subcommand it opens the interactive list. Tasks live in a hosted
table when a remote is configured and you are signed in, and in a local
database otherwise.

Examples:
  priorityforge                          # Interactive list
  priorityforge add "Write report" -u 4 -d 2 --in 3
  priorityforge list --sort due_date
  priorityforge done 1742                # Ctrl+C within 1.5s undoes
  priorityforge login --email me@example.com`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			utils.SetVerboseMode(c.verbose)
		},
		RunE: c.runTUI,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file or directory (default $XDG_CONFIG_HOME/priorityforge/config.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newListCmd(c),
		newAddCmd(c),
		newEditCmd(c),
		newDoneCmd(c),
		newDeleteCmd(c),
		newReprioritizeCmd(c),
		newStatusCmd(c),
		newLoginCmd(c),
		newLogoutCmd(c),
		newConfigCmd(c),
	)
	return root
}

func (c *cli) runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dir, err := utils.DataDir()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	closeLog, err := utils.OpenLogFile(filepath.Join(dir, "priorityforge.log"))
	if err != nil {
		return err
	}
	defer closeLog()

	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	if err := e.StartBackground(ctx); err != nil {
		utils.Warnf("Background jobs not started: %v", err)
	}
	return tui.Run(ctx, e)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	c.close()
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
