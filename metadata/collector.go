package metadata

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/pivotal-cf-experimental/instance-metadata-agent/util"
)

const (
	// Link-local metadata service address, same for AWS and Azure.
	defaultMetadataBaseURL = "http://169.254.169.254"

	awsTokenPath    = "/latest/api/token"
	awsDocumentPath = "/latest/dynamic/instance-identity/document"
	awsTokenTTL     = "21600"

	azureDocumentPath = "/metadata/instance"
	azureAPIVersion   = "2021-02-01"

	requestTimeout = 10 * time.Second
)

// Collector assembles the payload: a host-identity segment first, then the
// cloud provider's instance metadata document when a platform is selected.
// Metadata retrieval is best effort: failures are logged but never block the
// push, the payload simply carries whatever was retrieved.
type Collector struct {
	// Base URLs are fields so tests can point them at local fake services.
	AWSBaseURL   string
	AzureBaseURL string

	client      *http.Client
	azureClient *http.Client
	log         *zap.Logger
}

func NewCollector(log *zap.Logger) *Collector {
	return &Collector{
		AWSBaseURL:   defaultMetadataBaseURL,
		AzureBaseURL: defaultMetadataBaseURL,
		client:       &http.Client{Timeout: requestTimeout},
		// The Azure metadata service must be reached directly, never through
		// a proxy, so this transport carries no proxy function at all.
		azureClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: &http.Transport{Proxy: nil},
		},
		log: log,
	}
}

// Collect produces the payload blob for the given platform.
func (c *Collector) Collect(platform Platform) []byte {
	var payload bytes.Buffer
	payload.WriteString(c.hostIdentity())

	switch platform {
	case PlatformAWS:
		payload.Write(c.awsDocument())
	case PlatformAzure:
		payload.Write(c.azureDocument())
	}

	return payload.Bytes()
}

func (c *Collector) hostIdentity() string {
	info, err := host.Info()
	if err != nil {
		c.log.Warn("Could not read host information, falling back to hostname only", zap.Error(err))
		hostname, _ := os.Hostname()
		return fmt.Sprintf("%s %s/%s\n", hostname, runtime.GOOS, runtime.GOARCH)
	}

	return fmt.Sprintf("%s %s %s %s kernel %s %s\n",
		info.Hostname,
		info.OS,
		info.Platform,
		info.PlatformVersion,
		info.KernelVersion,
		info.KernelArch,
	)
}

// awsDocument fetches the instance-identity document using IMDSv2: a
// short-lived token first, then the token-authenticated document read.
func (c *Collector) awsDocument() []byte {
	token, err := c.awsToken()
	if err != nil {
		c.log.Warn("AWS metadata service unreachable", zap.Error(err))
		return nil
	}

	req, err := http.NewRequest(http.MethodGet, c.AWSBaseURL+awsDocumentPath, nil)
	if err != nil {
		c.log.Warn("Could not build AWS metadata request", zap.Error(err))
		return nil
	}
	req.Header.Set("X-aws-ec2-metadata-token", token)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("AWS metadata service unreachable", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	document, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn("Could not read AWS metadata document", zap.Error(err))
		return nil
	}
	if len(document) == 0 {
		c.log.Warn("AWS metadata service returned an empty document")
	}

	// Forwarded raw, even when the service answered with an error body.
	return document
}

func (c *Collector) awsToken() (string, error) {
	req, err := http.NewRequest(http.MethodPut, c.AWSBaseURL+awsTokenPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", awsTokenTTL)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

func (c *Collector) azureDocument() []byte {
	url := fmt.Sprintf("%s%s?api-version=%s", c.AzureBaseURL, azureDocumentPath, azureAPIVersion)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		c.log.Warn("Could not build Azure metadata request", zap.Error(err))
		return nil
	}
	req.Header.Set("Metadata", "true")

	resp, err := c.azureClient.Do(req)
	if err != nil {
		c.log.Warn("Azure metadata service unreachable", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	document, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn("Could not read Azure metadata document", zap.Error(err))
		return nil
	}
	if len(document) == 0 {
		c.log.Warn("Azure metadata service returned an empty document")
		return nil
	}

	pretty, err := util.PrettyJSON(document)
	if err != nil {
		c.log.Warn("Azure metadata document is not valid JSON, forwarding as-is", zap.Error(err))
		return document
	}
	return pretty
}
