package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wegman-software/osmpoi-go/internal/dataset"
	"github.com/wegman-software/osmpoi-go/internal/metrics"
)

const extract = `<?xml version="1.0"?>
<osm version="0.6">
  <node id="1" lat="43.7300000" lon="7.4200000"><tag k="name" v="Casino"/></node>
  <node id="2" lat="43.7400000" lon="7.4300000"/>
  <node id="3" lat="43.7500000" lon="7.4400000"/>
  <node id="4" lat="45.0000000" lon="9.0000000"><tag k="name" v="Far"/></node>
  <way id="5"><nd ref="2"/><nd ref="3"/><tag k="name" v="Avenue"/></way>
</osm>`

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	dir, err := dataset.Open(t.TempDir())
	require.NoError(t, err)

	input := filepath.Join(t.TempDir(), "monaco.osm")
	require.NoError(t, os.WriteFile(input, []byte(extract), 0o644))
	_, err = dir.Add(context.Background(), input, "monaco", dataset.AddOptions{Workers: 1})
	require.NoError(t, err)

	s, err := New(dir, opts)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestHealthAndDatasets(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = get(t, ts.URL+"/datasets")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "monaco", list[0]["name"])
	assert.NotContains(t, list[0], "Path")
}

func TestQueryGet(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, body := get(t, ts.URL+"/datasets/monaco/query?lat=43.73&lon=7.42&radius=0.5&strict=true")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var rows []Row
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "point", rows[0].POIType)
	assert.InDelta(t, 43.73, rows[0].Lat, 1e-9)
	assert.InDelta(t, 0, rows[0].Distance, 1e-9)
	assert.JSONEq(t, `{"name":"Casino"}`, string(rows[0].Tags))

	// A wider radius reaches the way but not the distant node.
	_, body = get(t, ts.URL+"/datasets/monaco/query?lat=43.73&lon=7.42&radius=5")
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Len(t, rows, 2)
}

func TestQueryGeoJSON(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, body := get(t, ts.URL+"/datasets/monaco/query?lat=43.73&lon=7.42&radius=5&format=geojson")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(body, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 2)
}

func TestQueryPost(t *testing.T) {
	ts := newTestServer(t, Options{})

	body := `{"radius": 1, "strict": true, "points": [
		{"id": 7, "lat": 43.73, "lon": 7.42},
		{"id": 8, "lat": 45.0, "lon": 9.0}
	]}`
	resp, err := http.Post(ts.URL+"/datasets/monaco/query", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []Row
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(7), rows[0].ReferID)
	assert.Equal(t, int64(8), rows[1].ReferID)
	assert.JSONEq(t, `{"name":"Far"}`, string(rows[1].Tags))
}

func TestQueryErrors(t *testing.T) {
	ts := newTestServer(t, Options{MaxRadiusKm: 10, MaxPoints: 1})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown dataset", http.MethodGet, "/datasets/nowhere/query?lat=1&lon=1", "", http.StatusNotFound},
		{"missing lat", http.MethodGet, "/datasets/monaco/query?lon=1", "", http.StatusBadRequest},
		{"bad lat", http.MethodGet, "/datasets/monaco/query?lat=x&lon=1", "", http.StatusBadRequest},
		{"lat out of range", http.MethodGet, "/datasets/monaco/query?lat=91&lon=1", "", http.StatusBadRequest},
		{"negative radius", http.MethodGet, "/datasets/monaco/query?lat=1&lon=1&radius=-1", "", http.StatusBadRequest},
		{"radius over limit", http.MethodGet, "/datasets/monaco/query?lat=1&lon=1&radius=11", "", http.StatusBadRequest},
		{"bad strict", http.MethodGet, "/datasets/monaco/query?lat=1&lon=1&strict=maybe", "", http.StatusBadRequest},
		{"bad body", http.MethodPost, "/datasets/monaco/query", "{", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/datasets/monaco/query", `{"nope": 1}`, http.StatusBadRequest},
		{"too many points", http.MethodPost, "/datasets/monaco/query", `{"radius":1,"points":[{"lat":1,"lon":1},{"lat":2,"lon":2}]}`, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/datasets", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestIndexCache(t *testing.T) {
	ts := newTestServer(t, Options{})
	hits := testutil.ToFloat64(metrics.IndexCache.WithLabelValues("hit"))
	misses := testutil.ToFloat64(metrics.IndexCache.WithLabelValues("miss"))

	for i := 0; i < 3; i++ {
		resp, _ := get(t, ts.URL+"/datasets/monaco/query?lat=43.73&lon=7.42")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, misses+1, testutil.ToFloat64(metrics.IndexCache.WithLabelValues("miss")))
	assert.Equal(t, hits+2, testutil.ToFloat64(metrics.IndexCache.WithLabelValues("hit")))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: rate.Every(time.Hour), Burst: 1})

	resp, _ := get(t, ts.URL+"/datasets")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, ts.URL+"/datasets")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health checks are not limited.
	resp, _ = get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	get(t, ts.URL+"/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `osmpoi_http_requests_total{code="200",route="/healthz"}`)
}
