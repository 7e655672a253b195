package agentconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// The gateway convention: 9091 is the scrape-style push port, 9092 accepts
// raw data pushes. Operators habitually configure the former.
const (
	pushPortSuffix     = "9091"
	dataPushPortSuffix = "9092"
)

const envPrefix = "METRICS_AGENT"

// AgentConfig is built once at startup and never mutated afterwards.
type AgentConfig struct {
	MetricsHost string
	Customer    string
	Instance    string
	User        string
	Password    string
	LogFile     string
}

// Parse reads a key=value config file. Environment variables of the form
// METRICS_AGENT_<KEY> override file values.
func Parse(configPath string) (*AgentConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot read config file [%s]: %w", configPath, err)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	config := &AgentConfig{
		MetricsHost: v.GetString("metrics_host"),
		Customer:    v.GetString("metrics_customer"),
		Instance:    v.GetString("metrics_instance"),
		User:        v.GetString("metrics_user"),
		Password:    v.GetString("metrics_passwd"),
		LogFile:     v.GetString("metadata_logfile"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	config.MetricsHost = normalizeHostPort(config.MetricsHost)
	return config, nil
}

func (c *AgentConfig) validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"metrics_host", c.MetricsHost},
		{"metrics_customer", c.Customer},
		{"metrics_instance", c.Instance},
		{"metrics_user", c.User},
		{"metrics_passwd", c.Password},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required values: %s", strings.Join(missing, ", "))
	}
	return nil
}

// normalizeHostPort rewrites a host ending in the push port so the agent
// targets the data-push port instead. Plain string substitution, anything
// not ending in 9091 passes through untouched.
func normalizeHostPort(host string) string {
	if strings.HasSuffix(host, pushPortSuffix) {
		return strings.TrimSuffix(host, pushPortSuffix) + dataPushPortSuffix
	}
	return host
}
