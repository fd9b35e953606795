package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
	}
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if filepath.Base(configDir) != "taskscope" {
		t.Errorf("GetConfigDir() = %v, should end in 'taskscope'", configDir)
	}
	if runtime.GOOS == "linux" && configDir != "/xdg/taskscope" {
		t.Errorf("GetConfigDir() = %v, want /xdg/taskscope", configDir)
	}
}

func TestGetConfigPathOverride(t *testing.T) {
	t.Setenv(PathEnvVar, "/tmp/custom.yaml")

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if configPath != "/tmp/custom.yaml" {
		t.Errorf("GetConfigPath() = %v, want the %s override", configPath, PathEnvVar)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Targets == nil {
		t.Error("NewRegistry().Targets should not be nil")
	}
	if reg.Defaults.GDBPath != DefaultGDBPath || reg.Defaults.ObjdumpPath != DefaultObjdumpPath {
		t.Errorf("NewRegistry().Defaults = %+v", reg.Defaults)
	}
}

func TestRegistryTargets(t *testing.T) {
	reg := NewRegistry()

	bench := reg.EnsureTarget("bench")
	bench.OpenOCDHost = "10.0.0.12"
	if reg.EnsureTarget("bench") != bench {
		t.Error("EnsureTarget() should return the existing preset")
	}
	reg.EnsureTarget("discovery")
	reg.Defaults.Target = "bench"

	if diff := cmp.Diff([]string{"bench", "discovery"}, reg.TargetNames()); diff != "" {
		t.Errorf("TargetNames() mismatch (-want +got):\n%s", diff)
	}

	reg.TouchTarget("bench")
	if bench.LastUsed.IsZero() {
		t.Error("TouchTarget() should set LastUsed")
	}

	if !reg.RemoveTarget("bench") {
		t.Error("RemoveTarget(bench) = false")
	}
	if reg.RemoveTarget("bench") {
		t.Error("RemoveTarget(bench) twice = true")
	}
	if reg.Defaults.Target != "" {
		t.Errorf("removing the default target should clear it, got %q", reg.Defaults.Target)
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	reg.Defaults.Profile = "f4os"
	reg.Defaults.Target = "discovery"
	reg.Targets["discovery"] = &Target{ELF: "f4os.elf"}
	reg.Targets["bench"] = &Target{
		OpenOCDHost: "10.0.0.12",
		OpenOCDPort: 4444,
		ELF:         "legacy.elf",
		Profile:     "f4os-legacy",
	}

	tests := []struct {
		name string
		arg  string
		want Settings
	}{
		{
			name: "default target",
			want: Settings{
				Target:      "discovery",
				GDBPath:     DefaultGDBPath,
				ObjdumpPath: DefaultObjdumpPath,
				OpenOCDHost: DefaultOpenOCDHost,
				OpenOCDPort: DefaultOpenOCDPort,
				ELF:         "f4os.elf",
				Profile:     "f4os",
			},
		},
		{
			name: "named target overrides",
			arg:  "bench",
			want: Settings{
				Target:      "bench",
				GDBPath:     DefaultGDBPath,
				ObjdumpPath: DefaultObjdumpPath,
				OpenOCDHost: "10.0.0.12",
				OpenOCDPort: 4444,
				ELF:         "legacy.elf",
				Profile:     "f4os-legacy",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Resolve(tt.arg)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.arg, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", tt.arg, diff)
			}
		})
	}

	_, err := reg.Resolve("lab")
	var unknown *UnknownTargetError
	if !errors.As(err, &unknown) {
		t.Fatalf("Resolve(lab) error = %v, want UnknownTargetError", err)
	}
	if !strings.Contains(err.Error(), "bench, discovery") {
		t.Errorf("error should list configured targets: %v", err)
	}
}

func TestResolveWithoutPresets(t *testing.T) {
	got, err := (&Registry{Version: 1}).Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.OpenOCDPort != DefaultOpenOCDPort || got.GDBPath != DefaultGDBPath {
		t.Errorf("Resolve() = %+v, want built-in defaults", got)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Defaults.Demangle = true
	reg.Targets["bench"] = &Target{
		Description: "bench board",
		OpenOCDHost: "10.0.0.12",
		ELF:         "legacy.elf",
		Profile:     "f4os-legacy",
	}
	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be gone after save")
	}

	loaded, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if diff := cmp.Diff(reg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	reg, err := LoadRegistryFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if diff := cmp.Diff(NewRegistry(), reg); diff != "" {
		t.Errorf("missing file should give defaults (-want +got):\n%s", diff)
	}
}

func TestLoadRegistryRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistryFrom(path); err == nil || !strings.Contains(err.Error(), "unsupported config version") {
		t.Errorf("LoadRegistryFrom() error = %v", err)
	}
}

func TestLoadRegistryFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\ntargets:\n  bench:\n    openocd_port: 4444\n"), 0600); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if reg.Defaults == nil || reg.Defaults.GDBPath != DefaultGDBPath {
		t.Errorf("Defaults = %+v", reg.Defaults)
	}
	if reg.GetTarget("bench").OpenOCDPort != 4444 {
		t.Errorf("bench = %+v", reg.GetTarget("bench"))
	}
}

func TestLoadRegistryGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(PathEnvVar, path)

	reg := NewRegistry()
	reg.EnsureTarget("discovery").ELF = "f4os.elf"
	if err := reg.SaveTo(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	if loaded.GetTarget("discovery") == nil {
		t.Error("global registry should read TASKSCOPE_CONFIG")
	}
	again, _ := LoadRegistry()
	if again != loaded {
		t.Error("LoadRegistry() should return the cached registry")
	}
}
