package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrinehq/vitrine/internal/domain/fragment"
	"github.com/vitrinehq/vitrine/internal/domain/sandbox"
	"github.com/vitrinehq/vitrine/internal/domain/security"
	"github.com/vitrinehq/vitrine/internal/infrastructure/logging"
	"github.com/vitrinehq/vitrine/internal/infrastructure/monitoring"
	"github.com/vitrinehq/vitrine/internal/providers/math"
	"github.com/vitrinehq/vitrine/internal/service"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Handlers) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := service.NewRegistry()
	require.NoError(t, registry.Register(math.NewProvider()))

	cfg := sandbox.DefaultConfig()
	cfg.Gate = security.MustNew()
	fragments := fragment.NewManager(registry, nil, fragment.Defaults{
		Sandbox:     cfg,
		ToolTimeout: 2 * time.Second,
	})
	t.Cleanup(func() { fragments.CloseAll() })

	handlers := NewHandlers(fragments, registry, logging.NewNop())

	router := gin.New()
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.POST("/fragments", handlers.SpawnFragment)
	router.GET("/fragments", handlers.ListFragments)
	router.GET("/fragments/:id", handlers.GetFragment)
	router.DELETE("/fragments/:id", handlers.CloseFragment)
	router.POST("/fragments/:id/execute", handlers.ExecuteInFragment)
	router.POST("/fragments/:id/operation", handlers.PostOperation)
	router.POST("/fragments/:id/operations", handlers.PostBatch)
	router.POST("/fragments/:id/events", handlers.DispatchEvent)
	router.POST("/fragments/:id/tools", handlers.FragmentToolCall)
	router.GET("/services", handlers.ListServices)
	router.POST("/services/execute", handlers.ExecuteService)
	router.GET("/stats", handlers.Stats)
	router.POST("/logs", handlers.IngestLogs)

	return router, handlers
}

func perform(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func spawnBody(code string, services ...interface{}) gin.H {
	mf := gin.H{
		"fragment": gin.H{"name": "demo", "version": "1.0.0"},
		"code":     code,
	}
	if len(services) > 0 {
		mf["services"] = services
	}
	return gin.H{"manifest": mf}
}

func spawnFragment(t *testing.T, router *gin.Engine, code string, services ...interface{}) string {
	t.Helper()
	w := perform(t, router, "POST", "/fragments", spawnBody(code, services...))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestRoot(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "GET", "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "vitrine", body["service"])
	assert.Equal(t, Version, body["version"])
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "fragments")
	assert.Contains(t, body, "services")
}

func TestSpawnFragment(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "POST", "/fragments", spawnBody(`ui.createElement("div")`, "math"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	id, _ := body["id"].(string)
	assert.True(t, strings.HasPrefix(id, "frag_"), "id %q", id)
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, "demo", body["title"])
	assert.Equal(t, []interface{}{"math"}, body["services"])
}

func TestSpawnFragmentTOML(t *testing.T) {
	router, _ := newTestRouter(t)

	manifestTOML := `code = "ui.setTextContent('n1', 'hi')"

[fragment]
name = "toml-demo"
version = "0.2.0"
`
	w := perform(t, router, "POST", "/fragments", gin.H{"manifest_toml": manifestTOML})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "toml-demo", body["title"])
	assert.Equal(t, "0.2.0", body["version"])
}

func TestSpawnFragmentCodeOverride(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "POST", "/fragments", gin.H{
		"manifest": gin.H{"fragment": gin.H{"name": "demo", "version": "1.0.0"}},
		"code":     `ui.createElement("div")`,
	})

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSpawnFragmentRejectsBadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name string
		body gin.H
		want string
	}{
		{
			name: "no manifest",
			body: gin.H{"code": "1"},
			want: "manifest or manifest_toml is required",
		},
		{
			name: "both encodings",
			body: gin.H{"manifest": gin.H{}, "manifest_toml": "x = 1"},
			want: "manifest and manifest_toml are mutually exclusive",
		},
		{
			name: "missing version",
			body: gin.H{"manifest": gin.H{"fragment": gin.H{"name": "demo"}, "code": "1"}},
			want: "fragment.version is required",
		},
		{
			name: "no code or bundle",
			body: gin.H{"manifest": gin.H{"fragment": gin.H{"name": "demo", "version": "1.0.0"}}},
			want: "code or bundle is required",
		},
		{
			name: "code and bundle",
			body: gin.H{
				"manifest": gin.H{
					"fragment": gin.H{"name": "demo", "version": "1.0.0"},
					"code":     "1",
				},
				"bundle_url":    "https://example.com/app.js",
				"bundle_digest": "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			},
			want: "code and bundle are mutually exclusive",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(t, router, "POST", "/fragments", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w)["error"], tc.want)
		})
	}
}

func TestSpawnFragmentRejectsDisallowedIdentifier(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "POST", "/fragments", spawnBody(`document.getElementById("x")`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "disallowed identifier")
}

func TestGetFragment(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`)

	w := perform(t, router, "GET", "/fragments/"+fragID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fragID, decode(t, w)["id"])

	w = perform(t, router, "GET", "/fragments/frag_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "fragment not found", decode(t, w)["error"])

	w = perform(t, router, "GET", "/fragments/bad!id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFragments(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`)

	w := perform(t, router, "GET", "/fragments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	frags := body["fragments"].([]interface{})
	require.Len(t, frags, 1)
	assert.Equal(t, fragID, frags[0].(map[string]interface{})["id"])

	w = perform(t, router, "GET", "/fragments?state=closed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["fragments"])

	w = perform(t, router, "GET", "/fragments?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "unknown state")
}

func TestCloseFragment(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`)

	w := perform(t, router, "DELETE", "/fragments/"+fragID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	// Closing again reports failure without erroring
	w = perform(t, router, "DELETE", "/fragments/"+fragID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestExecuteInFragment(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `var n = ui.createElement("div");`)

	w := perform(t, router, "POST", "/fragments/"+fragID+"/execute", gin.H{
		"code": `ui.setTextContent(n, "hello")`,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(1), result["ops_emitted"])

	w = perform(t, router, "POST", "/fragments/"+fragID+"/execute", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(t, router, "POST", "/fragments/frag_missing/execute", gin.H{"code": "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteReportsThrownError(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`)

	w := perform(t, router, "POST", "/fragments/"+fragID+"/execute", gin.H{
		"code": `throw new Error("boom")`,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "boom")
}

func TestPostOperation(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`)

	w := perform(t, router, "POST", "/fragments/"+fragID+"/operation", gin.H{
		"type":        "setTextContent",
		"nodeId":      "n1",
		"textContent": "hi",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	ack := body["result"].(map[string]interface{})
	assert.Equal(t, "setTextContent", ack["type"])
	assert.Equal(t, "n1", ack["nodeId"])

	// Structural validation happens before transport
	w = perform(t, router, "POST", "/fragments/"+fragID+"/operation", gin.H{
		"type": "setTextContent",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "requires nodeId")
}

func TestPostBatch(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`)

	w := perform(t, router, "POST", "/fragments/"+fragID+"/operations", gin.H{
		"operations": []gin.H{
			{"type": "createElement", "tagName": "span", "nodeId": "x1"},
			{"type": "appendChild", "parentId": "root", "childId": "x1"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, true, r.(map[string]interface{})["success"])
	}

	w = perform(t, router, "POST", "/fragments/"+fragID+"/operations", gin.H{
		"operations": []gin.H{{"type": "createElement"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "operations[0]")
}

func TestDispatchEvent(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `
		var n = ui.createElement("button");
		ui.appendChild(ui.root, n);
		__handlers.press = function() { ui.setTextContent(n, "pressed"); };
		ui.addEventListener(n, "click", "press");
	`)

	w := perform(t, router, "POST", "/fragments/"+fragID+"/events", gin.H{"event": "press"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "press", body["event"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(1), result["ops_emitted"])

	// Unknown listeners dispatch to nothing
	w = perform(t, router, "POST", "/fragments/"+fragID+"/events", gin.H{"event": "nope"})
	require.Equal(t, http.StatusOK, w.Code)
	result = decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, float64(0), result["ops_emitted"])
}

func TestFragmentToolCall(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`, "math")

	w := perform(t, router, "POST", "/fragments/"+fragID+"/tools", gin.H{
		"tool_id": "math.sum",
		"params":  gin.H{"numbers": []float64{1, 2, 3}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "ui-message-response", body["type"])
	assert.NotEmpty(t, body["messageId"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, true, result["success"])
	data := result["data"].(map[string]interface{})
	assert.Equal(t, float64(6), data["result"])
}

func TestFragmentToolCallRefused(t *testing.T) {
	router, _ := newTestRouter(t)
	fragID := spawnFragment(t, router, `ui.createElement("div")`)

	w := perform(t, router, "POST", "/fragments/"+fragID+"/tools", gin.H{
		"tool_id": "math.sum",
		"params":  gin.H{"numbers": []float64{1, 2, 3}},
	})

	// Refusal is an envelope error, not a transport failure
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "math.sum not allowed", body["error"])
	assert.NotContains(t, body, "result")
}

func TestListServices(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "GET", "/services", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	services := body["services"].([]interface{})
	require.Len(t, services, 1)
	assert.Equal(t, "math", services[0].(map[string]interface{})["id"])

	w = perform(t, router, "GET", "/services?category=storage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["services"])
}

func TestExecuteService(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "POST", "/services/execute", gin.H{
		"tool_id": "math.mean",
		"params":  gin.H{"numbers": []float64{2, 4}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["result"])

	w = perform(t, router, "POST", "/services/execute", gin.H{
		"tool_id": "nosuch.tool",
		"params":  gin.H{},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = perform(t, router, "POST", "/services/execute", gin.H{
		"tool_id": "math table",
		"params":  gin.H{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	router, handlers := newTestRouter(t)
	handlers.WithMetrics(monitoring.NewMetrics())

	w := perform(t, router, "GET", "/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "timestamp")
	assert.Contains(t, body, "fragments")
	assert.Contains(t, body, "services")
	assert.Contains(t, body, "requests")
	assert.Contains(t, body, "uptime_seconds")
}

func TestIngestLogs(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, "POST", "/logs", gin.H{
		"source": "renderer",
		"entries": []gin.H{
			{"id": "1", "level": "info", "message": "mounted", "context": gin.H{"nodes": 4}},
			{"id": "2", "level": "error", "message": ""},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["entries_received"])
	assert.Equal(t, float64(1), body["entries_processed"])

	w = perform(t, router, "POST", "/logs", gin.H{"source": "nobody", "entries": []gin.H{{"message": "x"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(t, router, "POST", "/logs", gin.H{"source": "renderer", "entries": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
