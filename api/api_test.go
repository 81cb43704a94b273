package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gateway "github.com/adonese/kaos/apigateway"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/store"
	"github.com/adonese/kaos/visibility"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = "../ephemeris/testdata/Sat_Test.e"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	svc    *Service
}

func newTestServer(t *testing.T, mutate ...func(*kaos_fields.KaosConfig)) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := kaos_fields.KaosConfig{UploadDir: filepath.Join(dir, "ephemeris")}
	for _, m := range mutate {
		m(&cfg)
	}
	cfg.Defaults()

	db, err := store.OpenFromConfig("", filepath.Join(dir, "kaos.db"), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st := store.New(db, store.WithLogger(logger))
	reg := prometheus.NewRegistry()
	vis := visibility.NewService(st, nil, logger, cfg, reg)
	svc := NewService(st, vis, cfg, logger)
	return &testServer{router: svc.Router(reg, reg), svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodPost, path, strings.NewReader(body), http.Header{"Content-Type": {"application/json"}})
}

// upload posts content as the multipart field "file" named filename. An empty
// field skips the file part.
func (ts *testServer) upload(t *testing.T, field, filename string, content []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(t, http.MethodPost, "/upload/uploader", &buf, header)
}

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestIndexAndNoRoute(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Welcome to KAOS!", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(gateway.RequestIDHeader))

	w = ts.do(t, http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]any{"reason": notFoundReason}, decode(t, w))
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)
	data := readFixture(t)

	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
		status   int
		reason   string
	}{
		{"missing file", "", "", nil, http.StatusUnprocessableEntity, "file"},
		{"unusable filename", "file", "???", data, http.StatusUnprocessableEntity, "filename"},
		{"wrong extension", "file", "Sat_Test.txt", data, http.StatusUnprocessableEntity, "filename"},
		{"malformed contents", "file", "Broken.e", []byte("not an ephemeris"), http.StatusUnprocessableEntity, "contents"},
		{"ok", "file", "Sat_Test.e", data, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.upload(t, tt.field, tt.filename, tt.content, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.reason != "" {
				assert.Contains(t, body["reasons"], tt.reason)
				return
			}
			assert.Equal(t, "OK", body["response"])
			assert.EqualValues(t, 200, body["status_code"])
			assert.EqualValues(t, 1, body["platform_id"])
			assert.EqualValues(t, 3, body["segments"])
		})
	}

	_, err := os.Stat(filepath.Join(ts.svc.Config.UploadDir, "Sat_Test.e"))
	assert.NoError(t, err)
}

func TestUploadSameNameConcurrently(t *testing.T) {
	ts := newTestServer(t)
	short := []byte("stk.v.11.0\nBEGIN Ephemeris\n# Epoch in JDate format: 2458119.5\nEphemerisTimePosVel\n" +
		"0 7e6 0 0 0 7.5e3 0\n60 7e6 1 0 0 7.5e3 0\nEND Ephemeris\n")
	contents := map[float64][]byte{9: readFixture(t), 2: short}

	type call struct {
		records float64
		req     *http.Request
		w       *httptest.ResponseRecorder
	}
	var calls []*call
	for i := 0; i < 4; i++ {
		for records, content := range contents {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, err := mw.CreateFormFile("file", "Sat_Test.e")
			require.NoError(t, err)
			_, err = fw.Write(content)
			require.NoError(t, err)
			require.NoError(t, mw.Close())
			req := httptest.NewRequest(http.MethodPost, "/upload/uploader", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			calls = append(calls, &call{records: records, req: req, w: httptest.NewRecorder()})
		}
	}

	var wg sync.WaitGroup
	for _, c := range calls {
		wg.Add(1)
		go func(c *call) {
			defer wg.Done()
			ts.router.ServeHTTP(c.w, c.req)
		}(c)
	}
	wg.Wait()

	for _, c := range calls {
		require.Equal(t, http.StatusOK, c.w.Code, c.w.Body.String())
		assert.Equal(t, c.records, decode(t, c.w)["records"])
	}
	entries, err := os.ReadDir(ts.svc.Config.UploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Sat_Test.e", entries[0].Name())
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *kaos_fields.KaosConfig) { c.MaxUploadBytes = 256 })
	w := ts.upload(t, "file", "Sat_Test.e", readFixture(t), nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["reasons"], "file")
}

func TestUploadRequiresToken(t *testing.T) {
	ts := newTestServer(t, func(c *kaos_fields.KaosConfig) { c.JWTSecret = "abcdef012345678" })
	data := readFixture(t)

	w := ts.upload(t, "file", "Sat_Test.e", data, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := ts.svc.Auth.GenerateJWT("operator", time.Minute)
	require.NoError(t, err)
	w = ts.upload(t, "file", "Sat_Test.e", data, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSatellites(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/satellites", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	require.Equal(t, http.StatusOK, ts.upload(t, "file", "Sat_Test.e", readFixture(t), nil).Code)
	w = ts.do(t, http.MethodGet, "/satellites", nil, nil)
	assert.JSONEq(t, `[{"id":1,"satellite_name":"Sat_Test"}]`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/satellites/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail kaos_fields.SatelliteDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "Sat_Test", detail.Name)
	assert.Equal(t, kaos_fields.FrameInertial, detail.CoordinateSystem)
	assert.InDelta(t, 7e6, detail.MaximumAltitude, 1)
	assert.Len(t, detail.Segments, 3)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/satellites/9", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/satellites/x", nil, nil).Code)

	w = ts.do(t, http.MethodGet, "/upload", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="file"`)
	assert.Contains(t, w.Body.String(), "Sat_Test")
}

func TestSearchRequests(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.upload(t, "file", "Sat_Test.e", readFixture(t), nil).Code)

	const poi = `"POI":{"startTime":"20180101T00:00:00.0","endTime":"20180101T00:06:00.0"}`
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		reason string
	}{
		{"search ok", "/visibility/search", `{"Target":[0,0],` + poi + `,"PlatformID":[1]}`, http.StatusOK, ""},
		{"search all platforms", "/visibility/search", `{"Target":[10,20],` + poi + `}`, http.StatusOK, ""},
		{"opportunity ok", "/opportunity", `{"TargetArea":[[0,0],[0,5],[5,5]],` + poi + `}`, http.StatusOK, ""},
		{"empty body", "/visibility/search", ``, http.StatusBadRequest, "empty_body"},
		{"unknown field", "/visibility/search", `{"Target":[0,0],` + poi + `,"Sensor":1}`, http.StatusBadRequest, "body"},
		{"bad target", "/visibility/search", `{"Target":[0,0,0],` + poi + `}`, http.StatusBadRequest, "Target"},
		{"missing poi", "/visibility/search", `{"Target":[0,0]}`, http.StatusBadRequest, "startTime"},
		{"area too small", "/opportunity", `{"TargetArea":[[0,0],[0,5]],` + poi + `}`, http.StatusBadRequest, "TargetArea"},
		{"unknown platform", "/visibility/search", `{"Target":[0,0],` + poi + `,"PlatformID":[7]}`, http.StatusUnprocessableEntity, "PlatformID"},
		{"no data", "/visibility/search",
			`{"Target":[0,0],"POI":{"startTime":"20190101T00:00:00.0","endTime":"20190101T00:06:00.0"}}`,
			http.StatusUnprocessableEntity, "Platform"},
		{"bad date", "/visibility/search",
			`{"Target":[0,0],"POI":{"startTime":"yesterday","endTime":"20180101T00:06:00.0"}}`,
			http.StatusUnprocessableEntity, "POI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.postJSON(t, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.reason != "" {
				assert.Contains(t, body["reasons"], tt.reason)
				assert.Contains(t, body, "extra_info")
				return
			}
			assert.Contains(t, body, "Opportunities")
			assert.Greater(t, body["ResponseID"], 0.0)
		})
	}
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.upload(t, "file", "Sat_Test.e", readFixture(t), nil).Code)

	w := ts.postJSON(t, "/visibility/search",
		`{"Target":[0,0],"POI":{"startTime":"20180101T00:00:00.0","endTime":"20180101T00:06:00.0"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp kaos_fields.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/search/%d", resp.ResponseID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stored kaos_fields.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, resp.ResponseID, stored.ResponseID)
	assert.Equal(t, resp.Opportunities, stored.Opportunities)

	w = ts.do(t, http.MethodGet, "/search/100", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"reasons":{"history_id":"Entry with value: 100 not found"},"extra_info":{}}`, w.Body.String())

	for _, path := range []string{"/search/100W", "/search/"} {
		w = ts.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, map[string]any{"reason": notFoundReason}, decode(t, w), path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/", nil, nil)

	w := ts.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kaos_request_requests_count")
}
