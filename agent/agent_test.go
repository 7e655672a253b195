package agent_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pivotal-cf-experimental/instance-metadata-agent/agent"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/agentconfig"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/matcher"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/metadata"
	"github.com/pivotal-cf-experimental/instance-metadata-agent/testhelpers"
)

const transientAuthBody = `{"message":"invalid username or password"}`

var _ = Describe("Agent", func() {
	var (
		fakeMetadata *testhelpers.FakeMetadataService
		gateway      *testhelpers.FakeGateway
		logs         *observer.ObservedLogs
		metricsRoot  string
		testAgent    *agent.Agent
		hostname     string
	)

	BeforeEach(func() {
		fakeMetadata = testhelpers.NewFakeMetadataService(`{"instanceId":"i-abc123","region":"us-east-1"}`)
		fakeMetadata.Start()

		gateway = testhelpers.NewFakeGateway()
		gateway.Start()

		core, observed := observer.New(zap.InfoLevel)
		logs = observed

		config := &agentconfig.AgentConfig{
			MetricsHost: gateway.URL(),
			Customer:    "pilsner",
			Instance:    "instance-0123",
			User:        "push-user",
			Password:    "push-secret",
		}

		metricsRoot = GinkgoT().TempDir()
		testAgent = agent.New(config, metricsRoot, zap.New(core))
		testAgent.Collector.AWSBaseURL = fakeMetadata.URL()
		testAgent.Collector.AzureBaseURL = fakeMetadata.URL()
		testAgent.Pusher.Delay = time.Millisecond

		var err error
		hostname, err = os.Hostname()
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		fakeMetadata.Close()
		gateway.Close()
	})

	It("collects, persists and pushes an AWS payload on the first attempt", func() {
		Expect(testAgent.Run(metadata.PlatformAWS)).To(Succeed())

		var push testhelpers.ReceivedPush
		Eventually(gateway.ReceivedPushes).Should(Receive(&push))
		Expect(push.Body).To(matcher.ContainSegmentsInOrder(
			hostname,
			`{"instanceId":"i-abc123","region":"us-east-1"}`,
		))
		Expect(push.User).To(Equal("push-user"))

		persisted, err := os.ReadFile(filepath.Join(metricsRoot, agent.PayloadFileName))
		Expect(err).ToNot(HaveOccurred())
		Expect(persisted).To(Equal(push.Body))

		Expect(logs.FilterMessage("Pushing metrics").Len()).To(Equal(1))
		Expect(logs.FilterMessage("Checking result").Len()).To(Equal(1))
	})

	It("pushes a pretty-printed document on Azure", func() {
		fakeMetadata.Document = `{"compute":{"name":"vm-0"}}`

		Expect(testAgent.Run(metadata.PlatformAzure)).To(Succeed())

		var push testhelpers.ReceivedPush
		Eventually(gateway.ReceivedPushes).Should(Receive(&push))
		Expect(push.Body).To(matcher.ContainSegmentsInOrder(
			hostname,
			"{\n  \"compute\": {\n",
		))
	})

	It("pushes only the host identity when no platform is selected", func() {
		Expect(testAgent.Run(metadata.PlatformNone)).To(Succeed())

		var push testhelpers.ReceivedPush
		Eventually(gateway.ReceivedPushes).Should(Receive(&push))
		Expect(push.Body).To(matcher.ContainSegmentsInOrder(hostname))
		Expect(push.Body).ToNot(matcher.ContainSegmentsInOrder("instanceId"))
	})

	It("succeeds on the third attempt when the gateway glitches twice", func() {
		gateway.QueueResponse(transientAuthBody)
		gateway.QueueResponse(transientAuthBody)

		Expect(testAgent.Run(metadata.PlatformAWS)).To(Succeed())
		Expect(gateway.ReceivedPushes).To(HaveLen(3))
		Expect(logs.FilterMessage("Pushing metrics").Len()).To(Equal(3))
	})

	It("fails after exhausting every attempt", func() {
		for i := 0; i < 10; i++ {
			gateway.QueueResponse(transientAuthBody)
		}

		err := testAgent.Run(metadata.PlatformAWS)
		Expect(err).To(HaveOccurred())
		Expect(gateway.ReceivedPushes).To(HaveLen(10))
	})

	It("overwrites the collected-data file on every run", func() {
		path := filepath.Join(metricsRoot, agent.PayloadFileName)
		Expect(os.WriteFile(path, []byte("stale contents from a previous run"), 0o644)).To(Succeed())

		Expect(testAgent.Run(metadata.PlatformAWS)).To(Succeed())

		persisted, err := os.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(persisted).ToNot(ContainSubstring("stale contents"))
	})

	It("creates the metrics root when it does not exist yet", func() {
		nested := filepath.Join(metricsRoot, "deeper", "still")
		config := &agentconfig.AgentConfig{
			MetricsHost: gateway.URL(),
			Customer:    "pilsner",
			Instance:    "instance-0123",
			User:        "push-user",
			Password:    "push-secret",
		}
		nestedAgent := agent.New(config, nested, zap.NewNop())
		nestedAgent.Pusher.Delay = time.Millisecond

		Expect(nestedAgent.Run(metadata.PlatformNone)).To(Succeed())
		Expect(filepath.Join(nested, agent.PayloadFileName)).To(BeAnExistingFile())
	})
})
