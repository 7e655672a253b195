package testhelpers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// ReceivedPush captures one POST to the fake gateway's data endpoint.
type ReceivedPush struct {
	Body     []byte
	Customer string
	Instance string
	User     string
	Password string
}

// FakeGateway stands in for the metrics gateway. Responses are scripted with
// QueueResponse; once the script runs out every push is answered with
// {"status":"ok"}.
type FakeGateway struct {
	ReceivedPushes chan ReceivedPush

	server    *httptest.Server
	mu        sync.Mutex
	responses [][]byte
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		ReceivedPushes: make(chan ReceivedPush, 100),
	}
}

func (f *FakeGateway) Start() {
	f.server = httptest.NewUnstartedServer(f)
	f.server.Start()
}

func (f *FakeGateway) Close() {
	f.server.Close()
}

func (f *FakeGateway) URL() string {
	return f.server.URL
}

// QueueResponse appends a body to the response script.
func (f *FakeGateway) QueueResponse(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, []byte(body))
}

func (f *FakeGateway) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/data/" {
		rw.WriteHeader(http.StatusNotFound)
		return
	}

	contents, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	user, password, _ := r.BasicAuth()
	query := r.URL.Query()

	f.ReceivedPushes <- ReceivedPush{
		Body:     contents,
		Customer: query.Get("customer"),
		Instance: query.Get("instance"),
		User:     user,
		Password: password,
	}

	rw.Write(f.nextResponse())
}

func (f *FakeGateway) nextResponse() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return []byte(`{"status":"ok"}`)
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next
}
