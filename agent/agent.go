package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pivotal-cf-experimental/instance-metadata-agent/agentconfig"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/metadata"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/pusher"
)

// PayloadFileName is overwritten under the metrics root on every run and
// intentionally left behind for inspection.
const PayloadFileName = "_instance_data.log"

// Agent wires one run together: collect the payload, persist it under the
// metrics root, push the file contents to the gateway.
type Agent struct {
	Collector *metadata.Collector
	Pusher    *pusher.Pusher

	metricsRoot string
	log         *zap.Logger
}

func New(config *agentconfig.AgentConfig, metricsRoot string, log *zap.Logger) *Agent {
	return &Agent{
		Collector:   metadata.NewCollector(log),
		Pusher:      pusher.New(config, log),
		metricsRoot: metricsRoot,
		log:         log,
	}
}

func (a *Agent) Run(platform metadata.Platform) error {
	payload := a.Collector.Collect(platform)

	path, err := a.writePayloadFile(payload)
	if err != nil {
		return err
	}

	// The pushed body is the file's contents, not the in-memory payload.
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading collected data back from %s: %w", path, err)
	}

	return a.Pusher.Push(contents)
}

func (a *Agent) writePayloadFile(payload []byte) (string, error) {
	if err := os.MkdirAll(a.metricsRoot, 0o755); err != nil {
		return "", fmt.Errorf("creating metrics root %s: %w", a.metricsRoot, err)
	}

	path := filepath.Join(a.metricsRoot, PayloadFileName)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("writing collected data to %s: %w", path, err)
	}
	return path, nil
}
