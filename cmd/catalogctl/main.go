// Command catalogctl manages the local product catalog from the command line.
// It opens the same storage as the API server, so stop the server first when
// using the bolt driver.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"shelfdesk/internal/app"
	"shelfdesk/internal/config"
	"shelfdesk/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli holds the flags and the components opened for one invocation
type cli struct {
	out io.Writer

	output      string
	verbose     bool
	timeout     time.Duration
	storagePath string
	driver      string
	catalogURL  string

	logger *zap.Logger
	app    *app.App
	cancel context.CancelFunc
}

func main() {
	if err := execute(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs one command line; resources are released even when the command fails
func execute(ctx context.Context, out io.Writer, args []string) error {
	root, c := newRootCmd(out)
	root.SetArgs(args)
	defer c.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd(out io.Writer) (*cobra.Command, *cli) {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Manage the local product catalog",
		Long: `catalogctl reads and edits the locally persisted product catalog.

The remote catalog is read-only: fetch and reset load it, every other
change stays in local storage.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.output, "output", "o", formatTable, "Output format: table, json or yaml")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.DurationVar(&c.timeout, "timeout", 30*time.Second, "Operation timeout")
	flags.StringVar(&c.storagePath, "storage-path", "", "Bolt database file (overrides STORAGE_PATH)")
	flags.StringVar(&c.driver, "driver", "", "Storage driver: bolt or redis (overrides STORAGE_DRIVER)")
	flags.StringVar(&c.catalogURL, "catalog-url", "", "Remote catalog URL (overrides CATALOG_API_URL)")

	root.AddCommand(
		c.listCmd(),
		c.showCmd(),
		c.searchCmd(),
		c.categoriesCmd(),
		c.statsCmd(),
		c.stateCmd(),
		c.fetchCmd(),
		c.resetCmd(),
		c.addCmd(),
		c.editCmd(),
		c.deleteCmd(),
		c.clearCmd(),
	)
	return root, c
}

func (c *cli) open(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "help", "completion", "bash", "zsh", "fish", "powershell":
		return nil
	}
	if err := validateFormat(c.output); err != nil {
		return err
	}

	c.logger = logger.NewCLI(c.verbose)

	cfg, err := config.Load(c.logger)
	if err != nil {
		return err
	}
	if c.storagePath != "" {
		cfg.Storage.Path = c.storagePath
	}
	if c.driver != "" {
		cfg.Storage.Driver = c.driver
	}
	if c.catalogURL != "" {
		cfg.Catalog.URL = c.catalogURL
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	c.cancel = cancel
	cmd.SetContext(ctx)

	a, err := app.Open(ctx, cfg, c.logger)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.logger != nil {
		c.logger.Sync()
	}
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
