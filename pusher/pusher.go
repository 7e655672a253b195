package pusher

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pivotal-cf-experimental/instance-metadata-agent/agentconfig"
)

const (
	// DefaultMaxAttempts bounds the outer retry loop.
	DefaultMaxAttempts = 10

	// DefaultDelay is the fixed wait before every attempt, the first one
	// included. Deliberately constant, not exponential.
	DefaultDelay = time.Second

	connectRetries    = 5
	connectRetryDelay = 250 * time.Millisecond
	requestTimeout    = 30 * time.Second
)

// knownTransientAuthBody is the exact error body the gateway intermittently
// returns for requests carrying valid credentials. Coupled to the gateway's
// wording; update it here if that message ever changes.
var knownTransientAuthBody = []byte(`{"message":"invalid username or password"}`)

// IsKnownTransientAuthError reports whether a gateway response body is the
// known false credential rejection that warrants another attempt.
func IsKnownTransientAuthError(body []byte) bool {
	return bytes.Equal(body, knownTransientAuthBody)
}

// Pusher delivers a payload to the gateway's data endpoint with basic auth,
// retrying through the gateway's intermittent credential rejections.
type Pusher struct {
	// MaxAttempts and Delay are settable before the first Push call.
	MaxAttempts int
	Delay       time.Duration

	host     string
	customer string
	instance string
	user     string
	password string
	client   *http.Client
	log      *zap.Logger
}

func New(config *agentconfig.AgentConfig, log *zap.Logger) *Pusher {
	return &Pusher{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		host:        config.MetricsHost,
		customer:    config.Customer,
		instance:    config.Instance,
		user:        config.User,
		password:    config.Password,
		client:      &http.Client{Timeout: requestTimeout},
		log:         log,
	}
}

// Push POSTs the payload until the gateway accepts it or MaxAttempts is
// reached. Any response body other than the known transient rejection counts
// as acceptance; the body is recorded but deliberately not validated further.
func (p *Pusher) Push(payload []byte) error {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		time.Sleep(p.Delay)

		p.log.Info("Pushing metrics", zap.Int("attempt", attempt), zap.Int("bytes", len(payload)))
		body, err := p.post(payload)
		if err != nil {
			return fmt.Errorf("pushing metrics to %s: %w", p.host, err)
		}

		p.log.Info("Checking result", zap.ByteString("response", body))
		if IsKnownTransientAuthError(body) {
			p.log.Warn("Gateway rejected credentials, known transient failure, retrying")
			continue
		}
		return nil
	}

	p.log.Error("Giving up, gateway kept rejecting credentials", zap.Int("attempts", p.MaxAttempts))
	return fmt.Errorf("gateway still rejecting credentials after %d attempts", p.MaxAttempts)
}

// post performs one outer attempt. Connection-level failures are retried on
// the spot up to connectRetries times before the attempt is given up on.
func (p *Pusher) post(payload []byte) ([]byte, error) {
	var body []byte
	send := func() error {
		req, err := http.NewRequest(http.MethodPost, p.pushURL(), bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(p.user, p.password)

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(connectRetryDelay), connectRetries)
	if err := backoff.Retry(send, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Pusher) pushURL() string {
	return fmt.Sprintf("%s/data/?customer=%s&instance=%s",
		p.host, url.QueryEscape(p.customer), url.QueryEscape(p.instance))
}
