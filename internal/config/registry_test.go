package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/wbms/internal/protocol"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "wbms") {
		t.Errorf("GetConfigDir() = %v, should contain 'wbms'", configDir)
	}
	if runtime.GOOS == "linux" && configDir != filepath.Join("/tmp/xdg", "wbms") {
		t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME/wbms", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != CurrentVersion {
		t.Errorf("NewRegistry().Version = %v, want %d", reg.Version, CurrentVersion)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("default registry invalid: %v", err)
	}
	if reg.Timing.DisconnectTimeout != 300*time.Millisecond {
		t.Errorf("DisconnectTimeout = %v, want 300ms", reg.Timing.DisconnectTimeout)
	}

	cfg := reg.EndpointConfig()
	if cfg.Link.DisconnectTimeout != 300 || cfg.Link.AliveTimeout != 600 || cfg.RequestRetries != 2 {
		t.Errorf("EndpointConfig() = %+v", cfg)
	}
}

func TestAllocations(t *testing.T) {
	tests := []struct {
		name    string
		alloc   ContextAllocation
		wantErr bool
		verify  func(t *testing.T, reg *Registry)
	}{
		{
			name: "bitmap from device list",
			alloc: ContextAllocation{
				PMS: &SensorPlan{Devices: []uint8{2, 5, 61}, PacketsPerDevice: 4},
			},
			verify: func(t *testing.T, reg *Registry) {
				_, ns, err := reg.Allocations()
				if err != nil {
					t.Fatal(err)
				}
				want := uint64(1)<<2 | 1<<5 | 1<<61
				if ns.Devices[protocol.SensorPMS] != want || ns.PacketsPerDevice[protocol.SensorPMS] != 4 {
					t.Errorf("PMS = 0x%x/%d", ns.Devices[protocol.SensorPMS], ns.PacketsPerDevice[protocol.SensorPMS])
				}
			},
		},
		{
			name:    "device out of range",
			alloc:   ContextAllocation{EMS: &SensorPlan{Devices: []uint8{62}, PacketsPerDevice: 1}},
			wantErr: true,
		},
		{
			name:    "zero packets",
			alloc:   ContextAllocation{EMS: &SensorPlan{Devices: []uint8{1}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.Allocation.NonSafety = tt.alloc
			err := reg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.verify != nil {
				tt.verify(t, reg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Registry)
	}{
		{"bad version", func(r *Registry) { r.Version = 2 }},
		{"missing bridge", func(r *Registry) { r.Bridge = nil }},
		{"zero heartbeat", func(r *Registry) { r.Timing.HeartbeatPeriod = 0 }},
		{"zero slots", func(r *Registry) { r.Allocation.SlotCapacity = 0 }},
		{"no listen address", func(r *Registry) { r.Bridge.Listen = "" }},
		{"zero tick", func(r *Registry) { r.Bridge.TickPeriod = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			tt.modify(reg)
			if err := reg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Timing.HeartbeatPeriod = 50 * time.Millisecond
	reg.Bridge.Advertise = true
	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# wBMS host configuration") {
		t.Error("header comment missing")
	}
	if !strings.Contains(string(data), "heartbeat_period: 50ms") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Timing.HeartbeatPeriod != 50*time.Millisecond || !loaded.Bridge.Advertise {
		t.Errorf("loaded = %+v %+v", loaded.Timing, loaded.Bridge)
	}
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		verify  func(t *testing.T, reg *Registry)
	}{
		{
			name:    "missing sections use defaults",
			content: "version: 1\ntiming:\n  disconnect_timeout: 500ms\n  alive_timeout: 1s\n  heartbeat_period: 100ms\n  measurement_timeout: 250ms\n  request_interval: 300ms\n  request_retries: 1\n",
			verify: func(t *testing.T, reg *Registry) {
				if reg.Bridge == nil || reg.Bridge.Listen != ":8765" {
					t.Errorf("bridge = %+v", reg.Bridge)
				}
				if reg.EndpointConfig().Link.DisconnectTimeout != 500 {
					t.Errorf("disconnect = %v", reg.Timing.DisconnectTimeout)
				}
			},
		},
		{
			name:    "wrong version",
			content: "version: 7\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			content: "version: [\n",
			wantErr: true,
		},
		{
			name:    "invalid timing",
			content: "version: 1\ntiming:\n  heartbeat_period: 0s\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			reg, err := LoadFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.verify != nil {
				tt.verify(t, reg)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	reg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if reg.Version != CurrentVersion {
		t.Errorf("Version = %d", reg.Version)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	got, err := CreateDefaultConfig(path)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("path = %s, want %s", got, path)
	}
	if _, err := LoadFile(path); err != nil {
		t.Errorf("default config does not load: %v", err)
	}
}

func TestCreateDefaultConfigDefaultPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("default path override relies on XDG_CONFIG_HOME")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	got, err := CreateDefaultConfig("")
	if err != nil {
		t.Fatalf("CreateDefaultConfig(\"\") error = %v", err)
	}
	want, _ := GetConfigPath()
	if got != want {
		t.Errorf("path = %s, want %s", got, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("config not written to default path: %v", err)
	}
}

func TestReloadRegistry(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("default path override relies on XDG_CONFIG_HOME")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	reg := NewRegistry()
	reg.Timing.HeartbeatPeriod = 80 * time.Millisecond
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	if loaded.Timing.HeartbeatPeriod != 80*time.Millisecond {
		t.Errorf("HeartbeatPeriod = %v, want 80ms", loaded.Timing.HeartbeatPeriod)
	}

	reg.Timing.HeartbeatPeriod = 120 * time.Millisecond
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if cached, _ := LoadRegistry(); cached.Timing.HeartbeatPeriod != 80*time.Millisecond {
		t.Errorf("LoadRegistry() = %v, want the cached 80ms", cached.Timing.HeartbeatPeriod)
	}
	if loaded, _ = ReloadRegistry(); loaded.Timing.HeartbeatPeriod != 120*time.Millisecond {
		t.Errorf("ReloadRegistry() = %v, want 120ms", loaded.Timing.HeartbeatPeriod)
	}
}
