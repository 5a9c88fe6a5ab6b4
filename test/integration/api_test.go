package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/udc-experiments/internal/application"
	"github.com/eugenenazirov/udc-experiments/internal/config"
)

const configYAML = `
cuda: off
rate_limit:
  rps: 0
enable_request_logging: false
layouts:
  Varun:
    image_dir: /data/varun/udc
    artifact_root: /scratch/varun
named_configs:
  - name: varun_gf
    doc: guided filter on the Varun cluster
    overrides:
      system: Varun
      exp_name: gf-varun
      model: guided-filter
      device_list: [0, 1]
`

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	for _, key := range []string{"PORT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "UDC_CUDA", "UDC_SYSTEM"} {
		t.Setenv(key, "")
	}

	path := filepath.Join(t.TempDir(), "udcconf.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(afero.NewOsFs(), &config.CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	env := cfg.Environment(afero.NewMemMapFs(), func(string) (string, bool) { return "", false })
	app, err := application.New(cfg, env, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return app.Server().Handler
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type configResponse struct {
	Config struct {
		ExpName    string `json:"exp_name"`
		System     string `json:"system"`
		OutputDir  string `json:"output_dir"`
		Device     string `json:"device"`
		DeviceList []int  `json:"device_list"`
		NumThreads int    `json:"num_threads"`
	} `json:"config"`
	CheckpointPath string `json:"checkpointPath"`
}

func TestIntegrationFlow(t *testing.T) {
	handler := newHandler(t)

	rec := performRequest(t, handler, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/configs", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from list, got %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 12 {
		t.Fatalf("expected built-in and configured named configs, got %d", list.Count)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/configs/varun_gf", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from configured config, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp configResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if resp.Config.OutputDir != "/scratch/varun/outputs/gf-varun" || resp.CheckpointPath != "/scratch/varun/ckpts/gf-varun" {
		t.Fatalf("unexpected Varun directories: %s %s", resp.Config.OutputDir, resp.CheckpointPath)
	}
	if resp.Config.Device != "cpu" {
		t.Fatalf("expected cpu device with cuda off, got %s", resp.Config.Device)
	}
	if len(resp.Config.DeviceList) != 2 {
		t.Fatalf("unexpected device list %v", resp.Config.DeviceList)
	}

	body, _ := json.Marshal(map[string]any{
		"named":   []string{"varun_gf"},
		"updates": map[string]any{"batch_size": 4},
	})
	rec = performRequest(t, handler, http.MethodPost, "/api/resolve", body, map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from resolve, got %d: %s", rec.Code, rec.Body.String())
	}
	resp = configResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode resolve: %v", err)
	}
	if resp.Config.NumThreads != 4 || resp.Config.System != "Varun" {
		t.Fatalf("unexpected resolved config %+v", resp.Config)
	}
}
