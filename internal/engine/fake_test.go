package engine

import (
	"bytes"
	"io"
	"sync"

	http "github.com/bogdanfinn/fhttp"
)

// fakeResponse is the canned answer for one path
type fakeResponse struct {
	status int
	body   string
	err    error
}

// fakeDoer routes requests by URL path and records them
type fakeDoer struct {
	mu       sync.Mutex
	routes   map[string]fakeResponse
	requests []*http.Request
	bodies   map[string]string
	doFunc   func(req *http.Request) (*http.Response, error)
}

func newFakeDoer(routes map[string]fakeResponse) *fakeDoer {
	return &fakeDoer{routes: routes, bodies: make(map[string]string)}
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		f.bodies[req.URL.Path] = string(data)
	}
	f.mu.Unlock()

	if f.doFunc != nil {
		return f.doFunc(req)
	}

	route, ok := f.routes[req.URL.Path]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(bytes.NewBufferString(`{"error":"no route"}`)),
		}, nil
	}
	if route.err != nil {
		return nil, route.err
	}
	status := route.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(route.body)),
	}, nil
}

func (f *fakeDoer) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method+" "+r.URL.Path)
	}
	return out
}

func (f *fakeDoer) body(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}
