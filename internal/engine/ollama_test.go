package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/localchat/internal/errors"
	"github.com/diogo/localchat/internal/models"
)

const pullStream = `{"status":"pulling manifest"}
{"status":"pulling 8934d96d3f08","digest":"sha256:8934d96d3f08","total":2000000000,"completed":500000000}
{"status":"pulling 8934d96d3f08","digest":"sha256:8934d96d3f08","total":2000000000,"completed":2000000000}
{"status":"verifying sha256 digest"}
{"status":"success"}
`

func ollamaRoutes() map[string]fakeResponse {
	return map[string]fakeResponse{
		models.EndpointOllamaHealth:   {body: `{"version":"0.5.7"}`},
		models.EndpointOllamaPull:     {body: pullStream},
		models.EndpointOllamaGenerate: {body: `{"model":"phi3:mini","response":"","done":true}`},
		models.EndpointOllamaChat: {body: `{
			"model":"phi3:mini",
			"message":{"role":"assistant","content":"Hi there"},
			"done":true,
			"prompt_eval_count":20,
			"prompt_eval_duration":100000000,
			"eval_count":40,
			"eval_duration":2000000000
		}`},
	}
}

func TestOllamaLoad(t *testing.T) {
	doer := newFakeDoer(ollamaRoutes())
	loader, err := NewOllamaLoader("http://127.0.0.1:11434/", WithHTTPClient(doer))
	require.NoError(t, err)

	var reports []ProgressReport
	eng, err := loader.Load(context.Background(), "phi3:mini", LoadConfig{
		Progress: func(r ProgressReport) { reports = append(reports, r) },
		LogLevel: "INFO",
	})
	require.NoError(t, err)
	require.NotNil(t, eng)

	assert.Equal(t, []string{
		"GET " + models.EndpointOllamaHealth,
		"POST " + models.EndpointOllamaShow,
		"POST " + models.EndpointOllamaPull,
		"POST " + models.EndpointOllamaGenerate,
	}, doer.paths())

	pull := doer.body(models.EndpointOllamaPull)
	assert.Equal(t, "phi3:mini", gjson.Get(pull, "model").String())
	assert.True(t, gjson.Get(pull, "stream").Bool())
	assert.Equal(t, "30m", gjson.Get(doer.body(models.EndpointOllamaGenerate), "keep_alive").String())

	require.NotEmpty(t, reports)
	first := reports[0]
	require.NotNil(t, first.Progress)
	assert.Equal(t, 0.0, *first.Progress)
	assert.Contains(t, first.Text, "Connecting to http://127.0.0.1:11434")

	last := reports[len(reports)-1]
	require.NotNil(t, last.Progress)
	assert.Equal(t, 1.0, *last.Progress)
	assert.Contains(t, last.Text, "Finish loading")

	var quarter *ProgressReport
	for i := range reports {
		if strings.Contains(reports[i].Text, "25% completed") {
			quarter = &reports[i]
		}
	}
	require.NotNil(t, quarter, "expected a 25%% download report")
	assert.InDelta(t, 0.25, *quarter.Progress, 1e-9)
	assert.Contains(t, quarter.Text, "500 MB / 2.0 GB fetched")
}

func TestOllamaLoadErrors(t *testing.T) {
	tests := []struct {
		name      string
		override  map[string]fakeResponse
		wantCheck func(t *testing.T, err error)
	}{
		{
			name: "pull 404 maps to model not found",
			override: map[string]fakeResponse{
				models.EndpointOllamaPull: {status: 404, body: `{"error":"pull model manifest: file does not exist"}`},
			},
			wantCheck: func(t *testing.T, err error) {
				assert.True(t, apierrors.IsModelNotFound(err))
				assert.Contains(t, err.Error(), "phi3:mini")
			},
		},
		{
			name: "error line in stream",
			override: map[string]fakeResponse{
				models.EndpointOllamaPull: {body: "{\"status\":\"pulling manifest\"}\n{\"error\":\"disk full\"}\n"},
			},
			wantCheck: func(t *testing.T, err error) {
				assert.False(t, apierrors.IsModelNotFound(err))
				assert.Contains(t, err.Error(), "disk full")
			},
		},
		{
			name: "stream ends without success",
			override: map[string]fakeResponse{
				models.EndpointOllamaPull: {body: "{\"status\":\"pulling manifest\"}\n{\"status\":\"pulling abc\",\"total\":1000,\"completed\":10}\n"},
			},
			wantCheck: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, apierrors.ErrInvalidResponse)
				assert.Contains(t, err.Error(), "ended before success")
			},
		},
		{
			name: "garbage in stream",
			override: map[string]fakeResponse{
				models.EndpointOllamaPull: {body: "not json\n"},
			},
			wantCheck: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, apierrors.ErrInvalidResponse)
			},
		},
		{
			name: "runtime not running",
			override: map[string]fakeResponse{
				models.EndpointOllamaHealth: {err: assert.AnError},
			},
			wantCheck: func(t *testing.T, err error) {
				assert.True(t, apierrors.IsNetworkError(err))
			},
		},
		{
			name: "server error while loading",
			override: map[string]fakeResponse{
				models.EndpointOllamaGenerate: {status: 500, body: `{"error":"out of memory"}`},
			},
			wantCheck: func(t *testing.T, err error) {
				assert.Equal(t, 500, apierrors.GetHTTPStatus(err))
				assert.Contains(t, err.Error(), "out of memory")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes := ollamaRoutes()
			for k, v := range tt.override {
				routes[k] = v
			}
			loader, err := NewOllamaLoader("", WithHTTPClient(newFakeDoer(routes)))
			require.NoError(t, err)

			eng, err := loader.Load(context.Background(), "phi3:mini", LoadConfig{})
			require.Error(t, err)
			assert.Nil(t, eng)
			tt.wantCheck(t, err)
		})
	}
}

func TestOllamaLoadLocalModelOffline(t *testing.T) {
	routes := ollamaRoutes()
	routes[models.EndpointOllamaShow] = fakeResponse{body: `{"details":{"family":"phi3"}}`}
	routes[models.EndpointOllamaPull] = fakeResponse{
		body: "{\"status\":\"pulling manifest\"}\n{\"error\":\"pull model manifest: dial tcp: lookup registry.ollama.ai: no such host\"}\n",
	}
	doer := newFakeDoer(routes)
	loader, err := NewOllamaLoader("", WithHTTPClient(doer))
	require.NoError(t, err)

	var texts []string
	eng, err := loader.Load(context.Background(), "phi3:mini", LoadConfig{
		Progress: func(r ProgressReport) { texts = append(texts, r.Text) },
	})
	require.NoError(t, err)
	require.NotNil(t, eng)

	assert.Equal(t, []string{
		"GET " + models.EndpointOllamaHealth,
		"POST " + models.EndpointOllamaShow,
		"POST " + models.EndpointOllamaGenerate,
	}, doer.paths())
	assert.Equal(t, "phi3:mini", gjson.Get(doer.body(models.EndpointOllamaShow), "model").String())
	assert.Contains(t, texts, "Found phi3:mini in the local cache")
}

func TestOllamaLoadEmptyModel(t *testing.T) {
	loader, err := NewOllamaLoader("", WithHTTPClient(newFakeDoer(ollamaRoutes())))
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), "", LoadConfig{})
	assert.Error(t, err)
}

func TestOllamaComplete(t *testing.T) {
	doer := newFakeDoer(ollamaRoutes())
	loader, err := NewOllamaLoader("", WithHTTPClient(doer))
	require.NoError(t, err)
	eng, err := loader.Load(context.Background(), "phi3:mini", LoadConfig{})
	require.NoError(t, err)

	reply, err := eng.Complete(context.Background(), CompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: models.DefaultSystemPrompt},
			{Role: "user", Content: "Hello"},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	require.NoError(t, err)
	text, err := reply.Text()
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)

	body := doer.body(models.EndpointOllamaChat)
	assert.False(t, gjson.Get(body, "stream").Bool())
	assert.InDelta(t, 0.7, gjson.Get(body, "options.temperature").Float(), 1e-9)
	assert.Equal(t, int64(500), gjson.Get(body, "options.num_predict").Int())
	assert.Equal(t, "system", gjson.Get(body, "messages.0.role").String())
	assert.Equal(t, "Hello", gjson.Get(body, "messages.1.content").String())

	assert.Equal(t, "prefill: 200.0 tokens/sec, decode: 20.0 tokens/sec", eng.RuntimeStatsText())
}

func TestOllamaCompleteMissingContent(t *testing.T) {
	routes := ollamaRoutes()
	routes[models.EndpointOllamaChat] = fakeResponse{body: `{"done":true}`}
	loader, err := NewOllamaLoader("", WithHTTPClient(newFakeDoer(routes)))
	require.NoError(t, err)
	eng, err := loader.Load(context.Background(), "phi3:mini", LoadConfig{})
	require.NoError(t, err)

	_, err = eng.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, apierrors.ErrInvalidResponse)
}

func TestOllamaEngineClosed(t *testing.T) {
	loader, err := NewOllamaLoader("", WithHTTPClient(newFakeDoer(ollamaRoutes())))
	require.NoError(t, err)
	eng, err := loader.Load(context.Background(), "phi3:mini", LoadConfig{})
	require.NoError(t, err)

	require.NoError(t, eng.Close())
	_, err = eng.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, apierrors.ErrEngineClosed)
}

func TestPullReport(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantFrac *float64
		wantText string
	}{
		{
			name:     "status only",
			line:     `{"status":"pulling manifest"}`,
			wantText: "pulling manifest",
		},
		{
			name:     "success",
			line:     `{"status":"success"}`,
			wantFrac: ptr(1.0),
			wantText: "Model files ready",
		},
		{
			name:     "download",
			line:     `{"status":"pulling abc","total":1000,"completed":500}`,
			wantFrac: ptr(0.5),
			wantText: "pulling abc: 500 B / 1.0 kB fetched. 50% completed, 0 secs elapsed.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := pullReport(gjson.Parse(tt.line), 0)
			assert.Equal(t, tt.wantText, r.Text)
			if tt.wantFrac == nil {
				assert.Nil(t, r.Progress)
				return
			}
			require.NotNil(t, r.Progress)
			assert.InDelta(t, *tt.wantFrac, *r.Progress, 1e-9)
		})
	}
}

func ptr(f float64) *float64 { return &f }
