package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sovereign-xds/sovereign/internal/auth"
	"github.com/sovereign-xds/sovereign/internal/common/config"
	"github.com/sovereign-xds/sovereign/internal/discovery"
	"github.com/sovereign-xds/sovereign/internal/sources"
	"github.com/sovereign-xds/sovereign/internal/templates"
)

const passthroughTemplate = `inline://{"resources": {{ toJson .instances }}}`

var renderCount atomic.Int64

func init() {
	templates.RegisterNative("counting_server_test", func(ctx templates.RenderContext) (map[string]interface{}, error) {
		renderCount.Add(1)
		return map[string]interface{}{"resources": []interface{}{
			map[string]interface{}{"name": "counted"},
		}}, nil
	})
}

type serverOptions struct {
	cfg          *config.Config
	templateBody string
}

func newTestServer(t *testing.T, opts serverOptions) *httptest.Server {
	t.Helper()
	cfg := opts.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	body := opts.templateBody
	if body == "" {
		body = passthroughTemplate
	}

	registry, err := templates.NewRegistry(map[string]map[string]string{
		"default": {"clusters": body},
	})
	require.NoError(t, err)

	agg, err := sources.NewAggregator([]config.SourceConfig{
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{
				map[string]interface{}{
					"name":             "google-proxy",
					"service_clusters": []interface{}{"X1"},
					"domains":          []interface{}{"google.local"},
					"endpoints": []interface{}{
						map[string]interface{}{"address": "google.com.au", "port": 443, "region": "ap-southeast-2"},
						map[string]interface{}{"address": "google.com", "port": 443, "region": "us-west-1"},
					},
				},
			},
		}},
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{
				map[string]interface{}{
					"name":             "httpbin-proxy",
					"service_clusters": []interface{}{"T1"},
					"domains":          []interface{}{"example.local"},
					"endpoints": []interface{}{
						map[string]interface{}{"address": "httpbin.org", "port": 443},
					},
				},
			},
		}},
	}, nil, time.Minute)
	require.NoError(t, err)
	agg.Refresh()

	orchestrator, err := discovery.New(cfg, registry, agg)
	require.NoError(t, err)
	authenticator, err := auth.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(New(cfg, orchestrator, authenticator).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func discoveryBody(cluster, versionInfo string, metadata map[string]interface{}, resourceNames ...string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"version_info": versionInfo,
		"node": map[string]interface{}{
			"cluster":       cluster,
			"build_version": "e5f864a82d4f27110359daa2fbdcb12d99e415b9/1.18.2/Clean/RELEASE",
			"metadata":      metadata,
		},
		"resource_names": resourceNames,
	})
	return body
}

func postDiscovery(t *testing.T, ts *httptest.Server, path string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeDocument(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return doc
}

func TestDiscoveryMatchedCluster(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", "0", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "1.18.2", resp.Header.Get("X-Sovereign-Client-Build"))
	assert.Equal(t, "0", resp.Header.Get("X-Sovereign-Client-Version"))
	assert.Equal(t, "all", resp.Header.Get("X-Sovereign-Requested-Resources"))
	assert.Equal(t, "clusters", resp.Header.Get("X-Sovereign-Requested-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Sovereign-Response-Version"))

	doc := decodeDocument(t, resp)
	resources := doc["resources"].([]interface{})
	require.Len(t, resources, 1)
	assert.Equal(t, "httpbin-proxy", resources[0].(map[string]interface{})["name"])
	assert.Equal(t, resp.Header.Get("X-Sovereign-Response-Version"), doc["version_info"])
}

func TestDiscoveryWildcardClusterOrdering(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("*", "0", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := decodeDocument(t, resp)
	resources := doc["resources"].([]interface{})
	require.Len(t, resources, 2)
	assert.Equal(t, "google-proxy", resources[0].(map[string]interface{})["name"])
	assert.Equal(t, "httpbin-proxy", resources[1].(map[string]interface{})["name"])
}

func TestDiscoveryNotModifiedRoundTrip(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	first := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", "0", nil))
	require.Equal(t, http.StatusOK, first.StatusCode)
	version := first.Header.Get("X-Sovereign-Response-Version")
	require.NotEmpty(t, version)

	second := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", version, nil))
	require.Equal(t, http.StatusNotModified, second.StatusCode)
	assert.Equal(t, version, second.Header.Get("X-Sovereign-Response-Version"))

	body, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Empty(t, body, "304 must carry no body")
}

func TestDiscoveryConfigurableNoChangesCode(t *testing.T) {
	cfg := config.Default()
	cfg.NoChangesResponseCode = http.StatusOK
	ts := newTestServer(t, serverOptions{cfg: cfg})

	first := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", "0", nil))
	version := first.Header.Get("X-Sovereign-Response-Version")

	second := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", version, nil))
	assert.Equal(t, http.StatusOK, second.StatusCode)
	body, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestDiscoveryFilteredSubset(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("*", "0", nil, "httpbin-proxy"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "httpbin-proxy", resp.Header.Get("X-Sovereign-Requested-Resources"))

	doc := decodeDocument(t, resp)
	resources := doc["resources"].([]interface{})
	require.Len(t, resources, 1)
	assert.Equal(t, "httpbin-proxy", resources[0].(map[string]interface{})["name"])
}

func TestDiscoveryEmptyResourcesIs404(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("Z9", "0", nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Sovereign-Response-Version"),
		"the new version is still returned in headers")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestDiscoveryUnknownTypeIs404(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := postDiscovery(t, ts, "/v3/discovery:gizmos", discoveryBody("T1", "0", nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	doc := decodeDocument(t, resp)
	assert.Equal(t, "UnknownXdsType", doc["error"])
	assert.NotEmpty(t, doc["request_id"])
}

func TestDiscoveryMalformedPathIs404(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := postDiscovery(t, ts, "/vx/discovery:clusters", discoveryBody("T1", "0", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postDiscovery(t, ts, "/v3/clusters", discoveryBody("T1", "0", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDiscoveryInvalidBodyIs400(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := postDiscovery(t, ts, "/v3/discovery:clusters", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	doc := decodeDocument(t, resp)
	assert.Equal(t, "InvalidDiscoveryRequest", doc["error"])
}

func TestDiscoveryMalformedTemplateIs500(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		templateBody: "inline://\n- bad:\n  indent: [\n",
	})

	resp := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", "0", nil))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	doc := decodeDocument(t, resp)
	assert.Equal(t, "ConfigDeserializeError", doc["error"])
	assert.NotEmpty(t, doc["request_id"])
	assert.Contains(t, doc["description"], "syntax error")
	assert.NotContains(t, fmt.Sprint(doc["description"]), "yaml:",
		"raw parser output must not reach the client")
}

func authConfig(t *testing.T) (*config.Config, *fernet.Key) {
	t.Helper()
	var key fernet.Key
	require.NoError(t, key.Generate())
	cfg := config.Default()
	cfg.AuthEnabled = true
	cfg.EncryptionKeys = []string{key.Encode()}
	return cfg, &key
}

func TestDiscoveryUnauthenticatedIs401(t *testing.T) {
	cfg, _ := authConfig(t)
	ts := newTestServer(t, serverOptions{cfg: cfg})

	resp := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", "0", nil))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	doc := decodeDocument(t, resp)
	assert.Equal(t, "AuthFailure", doc["error"])
}

func TestDiscoveryAuthenticated(t *testing.T) {
	cfg, key := authConfig(t)
	ts := newTestServer(t, serverOptions{cfg: cfg})

	token, err := fernet.EncryptAndSign([]byte(`{"team": "edge"}`), key)
	require.NoError(t, err)

	resp := postDiscovery(t, ts, "/v3/discovery:clusters",
		discoveryBody("T1", "0", map[string]interface{}{"auth": string(token)}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRunsBeforeTemplateWork(t *testing.T) {
	cfg, _ := authConfig(t)
	ts := newTestServer(t, serverOptions{
		cfg:          cfg,
		templateBody: "native://counting_server_test",
	})

	before := renderCount.Load()
	resp := postDiscovery(t, ts, "/v3/discovery:clusters", discoveryBody("T1", "0", nil))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, before, renderCount.Load(), "unauthenticated requests must not render")
}

func TestUnknownTypeRejectedBeforeAuth(t *testing.T) {
	cfg, _ := authConfig(t)
	ts := newTestServer(t, serverOptions{cfg: cfg})

	resp := postDiscovery(t, ts, "/v3/discovery:gizmos", discoveryBody("T1", "0", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode,
		"an invalid type must not reveal auth behavior")
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
