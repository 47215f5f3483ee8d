package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/instructor/internal/config"
	"github.com/danmuck/instructor/internal/protocol"
	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/danmuck/instructor/internal/testutil/hexdiff"
	"github.com/danmuck/instructor/internal/testutil/testlog"
	"github.com/danmuck/instructor/internal/testutil/tlstest"
	"github.com/gin-gonic/gin"
)

const helloDoc = `id: hello
doc: greeting frame
endian: be
seq:
  - id: protocol
    type: u2
    default: 1
  - id: length
    type: u4
  - id: name
    type: bytes
    size: length
`

var helloWire = []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 'h', 'i'}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	def, err := schema.Parse([]byte(helloDoc), schema.FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, err := schema.Compile(def, cfg.SchemaOptions()...)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	reg := schema.NewRegistry()
	if err := reg.Add(&schema.Entry{ID: def.ID, Def: def, Schema: s}); err != nil {
		t.Fatalf("add: %v", err)
	}
	return New(cfg, reg)
}

func do(t *testing.T, srv *Server, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndSchemas(t *testing.T) {
	testlog.Start(t)
	srv := newTestServer(t, config.Default())

	w := do(t, srv, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"schemas":1`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}

	w = do(t, srv, http.MethodGet, "/schemas", nil, "")
	var list struct {
		Schemas []SchemaInfo `json:"schemas"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Schemas) != 1 || list.Schemas[0].ID != "hello" || list.Schemas[0].MinSize != 6 {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = do(t, srv, http.MethodGet, "/schemas/hello", nil, "")
	var info SchemaInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal info: %v", err)
	}
	if len(info.Fields) != 3 || info.Fields[2].Size != "length" || info.Doc != "greeting frame" {
		t.Fatalf("unexpected info: %+v", info)
	}

	if w := do(t, srv, http.MethodGet, "/schemas/nope", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown schema status = %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/metrics", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
}

func TestDecodeRoute(t *testing.T) {
	testlog.Start(t)
	srv := newTestServer(t, config.Default())

	body := append(append([]byte{}, helloWire...), 0xee)
	w := do(t, srv, http.MethodPost, "/schemas/hello/decode", body, "application/octet-stream")
	if w.Code != http.StatusOK {
		t.Fatalf("decode status = %d %s", w.Code, w.Body.String())
	}
	var res struct {
		Consumed int            `json:"consumed"`
		Trailing int            `json:"trailing"`
		Values   map[string]any `json:"values"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Consumed != 8 || res.Trailing != 1 || res.Values["name"] != "hi" {
		t.Fatalf("unexpected result: %+v", res)
	}

	w = do(t, srv, http.MethodPost, "/schemas/hello/decode?format=yaml&hex="+hex.EncodeToString(helloWire), nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "name: hi") {
		t.Fatalf("yaml decode = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Consumed-Bytes") != "8" {
		t.Fatalf("consumed header = %q", w.Header().Get("X-Consumed-Bytes"))
	}
}

func TestDecodeRouteErrors(t *testing.T) {
	testlog.Start(t)
	srv := newTestServer(t, config.Default())

	cases := []struct {
		name   string
		target string
		body   []byte
		want   int
	}{
		{"unknown schema", "/schemas/nope/decode", helloWire, http.StatusNotFound},
		{"bad hex", "/schemas/hello/decode?hex=zz", nil, http.StatusBadRequest},
		{"bad format", "/schemas/hello/decode?format=xml", helloWire, http.StatusBadRequest},
		{"short buffer", "/schemas/hello/decode", helloWire[:7], http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, tc.target, tc.body, "")
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestEncodeRoute(t *testing.T) {
	testlog.Start(t)
	srv := newTestServer(t, config.Default())

	w := do(t, srv, http.MethodPost, "/schemas/hello/encode", []byte(`{"length": 2, "name": "hi"}`), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("encode status = %d %s", w.Code, w.Body.String())
	}
	hexdiff.Equal(t, helloWire, w.Body.Bytes())

	w = do(t, srv, http.MethodPost, "/schemas/hello/encode?format=hex", []byte("length: 2\nname: hi\n"), "application/yaml")
	if w.Code != http.StatusOK || w.Body.String() != hex.EncodeToString(helloWire) {
		t.Fatalf("hex encode = %d %q", w.Code, w.Body.String())
	}
}

func TestEncodeRouteErrors(t *testing.T) {
	testlog.Start(t)
	srv := newTestServer(t, config.Default())

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"unset field", `{"name": "hi"}`, http.StatusUnprocessableEntity},
		{"overflow", `{"length": 1, "name": "hi"}`, http.StatusUnprocessableEntity},
		{"range", `{"protocol": 70000, "length": 0, "name": ""}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"bogus": 1}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/schemas/hello/encode", []byte(tc.body), "application/json")
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestSizeLimits(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.MaxMessageBytes = 10
	cfg.MaxFieldLength = 4
	srv := newTestServer(t, cfg)

	w := do(t, srv, http.MethodPost, "/schemas/hello/decode", make([]byte, 11), "")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized decode status = %d", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/schemas/hello/encode", []byte(`{"length": 5, "name": "hello"}`), "application/json")
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "too large") {
		t.Fatalf("field cap status = %d %s", w.Code, w.Body.String())
	}

	cfg = config.Default()
	cfg.MaxMessageBytes = math.MaxUint64
	unbounded := newTestServer(t, cfg)
	w = do(t, unbounded, http.MethodPost, "/schemas/hello/decode", helloWire, "")
	if w.Code != http.StatusOK {
		t.Fatalf("unbounded decode status = %d %s", w.Code, w.Body.String())
	}
}

func TestServerMethods(t *testing.T) {
	testlog.Start(t)
	srv := newTestServer(t, config.Default())

	res, err := srv.Decode("hello", helloWire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, _ := res.Message.String("name"); v != "hi" {
		t.Fatalf("name = %q", v)
	}
	if _, err := srv.Encode("missing", nil); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}
	if _, err := srv.Encode("hello", map[string]any{"length": 1}); !errors.Is(err, protocol.ErrUnsetField) {
		t.Fatalf("expected ErrUnsetField, got %v", err)
	}
}

func TestServeListener(t *testing.T) {
	testlog.Start(t)
	files := tlstest.Issue(t, t.TempDir())

	cases := []struct {
		name   string
		tls    bool
		scheme string
	}{
		{"plain", false, "http"},
		{"tls", true, "https"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			transport := &http.Transport{}
			if tc.tls {
				cfg.TLSCertFile, cfg.TLSKeyFile = files.Cert, files.Key
				transport.TLSClientConfig = files.ClientConfig(t)
			}
			srv := newTestServer(t, cfg)

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatalf("listen: %v", err)
			}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- srv.ServeListener(ctx, ln) }()

			client := &http.Client{Transport: transport, Timeout: 5 * time.Second}
			resp, err := client.Get(tc.scheme + "://" + ln.Addr().String() + "/health")
			if err != nil {
				cancel()
				t.Fatalf("get health: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d", resp.StatusCode)
			}

			cancel()
			if err := <-done; err != nil {
				t.Fatalf("serve: %v", err)
			}
		})
	}
}
