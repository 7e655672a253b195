package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// FakeMetadataService answers both the AWS IMDSv2 and the Azure instance
// metadata paths, recording the headers each one requires.
type FakeMetadataService struct {
	Token    string
	Document string

	server *httptest.Server

	mu               sync.Mutex
	lastTokenTTL     string
	lastToken        string
	lastMetadataFlag string
	lastAPIVersion   string
}

func NewFakeMetadataService(document string) *FakeMetadataService {
	return &FakeMetadataService{
		Token:    "fake-metadata-token",
		Document: document,
	}
}

func (f *FakeMetadataService) Start() {
	f.server = httptest.NewUnstartedServer(f)
	f.server.Start()
}

func (f *FakeMetadataService) Close() {
	f.server.Close()
}

func (f *FakeMetadataService) URL() string {
	return f.server.URL
}

// LastTokenTTL is the TTL header seen on the most recent token request.
func (f *FakeMetadataService) LastTokenTTL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenTTL
}

// LastToken is the token header seen on the most recent document request.
func (f *FakeMetadataService) LastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

// LastMetadataFlag is the Metadata header seen on the most recent Azure
// document request.
func (f *FakeMetadataService) LastMetadataFlag() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMetadataFlag
}

// LastAPIVersion is the api-version query seen on the most recent Azure
// document request.
func (f *FakeMetadataService) LastAPIVersion() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAPIVersion
}

func (f *FakeMetadataService) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/latest/api/token":
		f.lastTokenTTL = r.Header.Get("X-aws-ec2-metadata-token-ttl-seconds")
		rw.Write([]byte(f.Token))

	case r.Method == http.MethodGet && r.URL.Path == "/latest/dynamic/instance-identity/document":
		f.lastToken = r.Header.Get("X-aws-ec2-metadata-token")
		if f.lastToken != f.Token {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		rw.Write([]byte(f.Document))

	case r.Method == http.MethodGet && r.URL.Path == "/metadata/instance":
		f.lastMetadataFlag = r.Header.Get("Metadata")
		f.lastAPIVersion = r.URL.Query().Get("api-version")
		rw.Write([]byte(f.Document))

	default:
		rw.WriteHeader(http.StatusNotFound)
	}
}
