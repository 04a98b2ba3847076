// Package node contains the discoverer commands and the applications they run.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/portaldiscoverer/discoverer/cmd"
	"github.com/portaldiscoverer/discoverer/config"
	"github.com/portaldiscoverer/discoverer/fingerprint"
	"github.com/portaldiscoverer/discoverer/log"
)

// GetCommand returns the root command with the agent, serve and export subcommands.
func GetCommand() *cobra.Command {
	conf := config.DefaultConfig()
	c := &cobra.Command{
		Use:   "discoverer",
		Short: "collect portal observations and share them through a portal index",
	}
	cmd.AddFlags(c.PersistentFlags(), &conf)

	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "run the observation agent",
		RunE: func(c *cobra.Command, args []string) error {
			logger, err := configure(c, &conf)
			if err != nil {
				return err
			}
			c.SilenceUsage = true
			return runAgent(c.Context(), &conf, logger)
		},
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the portal index server",
		RunE: func(c *cobra.Command, args []string) error {
			logger, err := configure(c, &conf)
			if err != nil {
				return err
			}
			c.SilenceUsage = true
			return runServer(c.Context(), &conf, logger)
		},
	}
	var out, creds string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "export the portals stored by the index server as kml",
		RunE: func(c *cobra.Command, args []string) error {
			logger, err := configure(c, &conf)
			if err != nil {
				return err
			}
			if out == "" {
				return fmt.Errorf("output path not specified")
			}
			c.SilenceUsage = true
			return runExport(c.Context(), &conf, logger, out, creds)
		},
	}
	exportCmd.Flags().StringVar(&out, "out", "", "local file or gs://bucket/object to write the export to")
	exportCmd.Flags().StringVar(&creds, "creds", "", "path to gcloud credential file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Print(cmd.Version)
			if cmd.Commit != "" {
				fmt.Printf("+%s", cmd.Commit)
			}
			fmt.Println()
		},
	}
	c.AddCommand(agentCmd, serveCmd, exportCmd, versionCmd)
	return c
}

// configure loads the config file under the flags given on the command line
// and builds the root logger.
func configure(c *cobra.Command, conf *config.Config) (*zap.Logger, error) {
	if err := config.Load(conf, c.Flags()); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if _, ok := fingerprint.ByName(conf.Fingerprint); !ok {
		return nil, fmt.Errorf("unknown fingerprint algorithm %q", conf.Fingerprint)
	}
	// children can only raise the level of their parent
	level, err := conf.Logging.MinLevel()
	if err != nil {
		return nil, err
	}
	logger, err := log.New(level.String(), conf.Logging.Encoder)
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// signalContext is canceled on interrupt; os.Interrupt for all systems, syscall.SIGTERM is mainly for docker.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
