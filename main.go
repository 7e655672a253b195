package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pivotal-cf-experimental/instance-metadata-agent/agent"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/agentconfig"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/logging"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/metadata"
)

const defaultMetricsRoot = "/var/vcap/store/metrics-agent"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFilePath string
		metricsRoot    string
		azure          bool
	)

	cmd := &cobra.Command{
		Use:          "instance-metadata-agent",
		Short:        "Collects host and cloud instance metadata and pushes it to the metrics gateway",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := metadata.PlatformAWS
			if azure {
				platform = metadata.PlatformAzure
			}
			return runAgent(configFilePath, metricsRoot, platform)
		},
	}

	cmd.Flags().StringVarP(&configFilePath, "config", "c", "", "path to the agent config file (required)")
	cmd.Flags().StringVarP(&metricsRoot, "metrics-root", "m", defaultMetricsRoot, "directory for the collected-data file")
	cmd.Flags().BoolVar(&azure, "azure", false, "collect Azure instance metadata instead of AWS")
	cmd.MarkFlagRequired("config")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErr(c.UsageString())
		return err
	})

	return cmd
}

func runAgent(configFilePath, metricsRoot string, platform metadata.Platform) error {
	config, err := agentconfig.Parse(configFilePath)
	if err != nil {
		return err
	}

	logger, err := logging.New(config.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting instance metadata agent",
		zap.String("platform", platform.String()),
		zap.String("host", config.MetricsHost),
	)

	if err := agent.New(config, metricsRoot, logger).Run(platform); err != nil {
		logger.Error("Agent run failed", zap.Error(err))
		return err
	}
	return nil
}
