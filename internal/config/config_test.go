package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/eugenenazirov/udc-experiments/internal/experiment"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "UDC_CUDA", "UDC_SYSTEM"} {
		t.Setenv(key, "")
	}
}

const configPath = "/etc/udcconf/udcconf.yaml"

func writeConfigFile(t *testing.T, contents string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, configPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(afero.NewMemMapFs(), nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.CUDA != CUDAAuto {
		t.Fatalf("expected cuda mode auto, got %s", cfg.CUDA)
	}
	if cfg.System != "" {
		t.Fatalf("expected no default system, got %s", cfg.System)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown grace period: %s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("UDC_CUDA", "OFF")
	t.Setenv("UDC_SYSTEM", "FPM")
	t.Setenv("RATE_LIMIT_BURST", "7")

	cfg, err := Load(afero.NewMemMapFs(), &CLIOverrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9000" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if cfg.CUDA != CUDAOff {
		t.Fatalf("expected cuda off, got %s", cfg.CUDA)
	}
	if cfg.System != experiment.SystemFPM {
		t.Fatalf("expected system FPM, got %s", cfg.System)
	}
	if cfg.RateLimitBurst != 7 {
		t.Fatalf("expected burst 7, got %d", cfg.RateLimitBurst)
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("UDC_SYSTEM", "FPM")

	fs := writeConfigFile(t, `
port: "7070"
write_timeout: 3s
enable_request_logging: false
rate_limit:
  rps: 0
cuda: on
system: Varun
layouts:
  Varun:
    image_dir: /data/varun/udc
    artifact_root: /scratch/varun
named_configs:
  - name: varun_smoke
    doc: quick smoke run
    overrides:
      exp_name: smoke
      num_epochs: 1
      device_list: [0]
`)

	cfg, err := Load(fs, &CLIOverrides{ConfigFile: configPath})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "7070" || cfg.WriteTimeout != 3*time.Second {
		t.Fatalf("unexpected server settings: port=%s write_timeout=%s", cfg.Port, cfg.WriteTimeout)
	}
	if cfg.EnableRequestLogging {
		t.Fatalf("expected request logging to be disabled")
	}
	if cfg.RateLimitRPS != 0 || cfg.RateLimitBurst != defaultRateLimitBurst {
		t.Fatalf("unexpected rate limit: rps=%v burst=%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.CUDA != CUDAOn {
		t.Fatalf("expected cuda on, got %s", cfg.CUDA)
	}
	if cfg.System != experiment.SystemVarun {
		t.Fatalf("expected YAML system to win over env, got %s", cfg.System)
	}
	if got := cfg.Layouts[experiment.SystemVarun].ArtifactRoot; got != "/scratch/varun" {
		t.Fatalf("unexpected Varun layout: %s", got)
	}
	if len(cfg.NamedConfigs) != 1 || cfg.NamedConfigs[0].Name != "varun_smoke" {
		t.Fatalf("unexpected named configs: %+v", cfg.NamedConfigs)
	}

	params, err := experiment.Resolve(cfg.Environment(afero.NewMemMapFs(), os.LookupEnv), cfg.NamedConfigs[0].Overrides)
	if err != nil {
		t.Fatalf("resolve configured named config: %v", err)
	}
	if params.OutputDir != "/scratch/varun/outputs/smoke" {
		t.Fatalf("unexpected output dir %s", params.OutputDir)
	}
	if params.Device != "cuda:0" {
		t.Fatalf("expected cuda device when cuda is on, got %s", params.Device)
	}
}

func TestLoadCLIOverridesWin(t *testing.T) {
	clearEnv(t)
	fs := writeConfigFile(t, "port: \"7070\"\ncuda: on\n")

	port := "6060"
	cuda := "off"
	system := "Jarvis"
	cfg, err := Load(fs, &CLIOverrides{ConfigFile: configPath, Port: &port, CUDA: &cuda, System: &system})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "6060" || cfg.CUDA != CUDAOff || cfg.System != experiment.SystemJarvis {
		t.Fatalf("expected CLI overrides to win, got port=%s cuda=%s system=%s", cfg.Port, cfg.CUDA, cfg.System)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown cuda mode": "cuda: maybe\n",
		"unknown system":    "system: Laptop\n",
		"unknown layout":    "layouts:\n  Laptop:\n    image_dir: /data\n",
		"empty image dir":   "layouts:\n  Varun:\n    artifact_root: /data\n",
		"bad duration":      "idle_timeout: soon\n",
		"malformed yaml":    "port: [\n",
	}

	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeConfigFile(t, contents), &CLIOverrides{ConfigFile: configPath}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		if _, err := Load(afero.NewMemMapFs(), &CLIOverrides{ConfigFile: "/etc/udcconf/missing.yaml"}); err == nil {
			t.Fatalf("expected error for missing file")
		}
	})
}

func TestEnvironment(t *testing.T) {
	cfg := defaultConfig()
	cfg.System = experiment.SystemJarvis

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/proc/driver/nvidia/version", []byte("NVRM"), 0o444); err != nil {
		t.Fatalf("write driver file: %v", err)
	}
	noEnv := func(string) (string, bool) { return "", false }

	env := cfg.Environment(fs, noEnv)
	if !env.CUDAAvailable {
		t.Fatalf("expected auto mode to detect the driver")
	}
	if env.Defaults[experiment.KeySystem] != "Jarvis" {
		t.Fatalf("expected system default, got %v", env.Defaults)
	}
	if _, ok := env.Layouts[experiment.SystemCFI]; !ok {
		t.Fatalf("expected built-in layouts to be present")
	}

	cfg.CUDA = CUDAOff
	if cfg.Environment(fs, noEnv).CUDAAvailable {
		t.Fatalf("expected cuda off to win over detection")
	}
}
