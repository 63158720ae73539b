package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"serialmon/pkg/serial"
)

func validConfig() serial.SerialConfig {
	cfg := serial.DefaultConfig()
	cfg.Port = "/dev/ttyUSB0"
	return cfg
}

func newTestManager(t *testing.T) *FileConfigManager {
	t.Helper()
	m := NewFileConfigManager(filepath.Join(t.TempDir(), AppName))
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return m
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name:    "valid profile",
			profile: Profile{Name: "esp32", Config: validConfig(), CreatedAt: time.Now()},
			wantErr: false,
		},
		{
			name:    "empty name",
			profile: Profile{Config: validConfig(), CreatedAt: time.Now()},
			wantErr: true,
		},
		{
			name: "invalid format",
			profile: Profile{
				Name:      "bad",
				Config:    serial.SerialConfig{Port: "COM1", BaudRate: 9600, Format: "8N3"},
				CreatedAt: time.Now(),
			},
			wantErr: true,
		},
		{
			name:    "zero created_at",
			profile: Profile{Name: "esp32", Config: validConfig()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.profile.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Profile.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewFileConfigManager(t *testing.T) {
	m := NewFileConfigManager("/tmp/serialmon-test")

	if m.Dir() != "/tmp/serialmon-test" {
		t.Errorf("Dir() = %q", m.Dir())
	}
	if m.Path() != filepath.Join("/tmp/serialmon-test", "profiles.json") {
		t.Errorf("Path() = %q", m.Path())
	}
}

func TestFileConfigManager_SaveAndLoad(t *testing.T) {
	m := newTestManager(t)
	cfg := validConfig()
	cfg.BaudRate = 9600
	cfg.Format = "7E1"
	cfg.EOL = serial.EOLCRLF

	if err := m.Save("modem", cfg, "bench modem"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := m.Load("modem")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Config != cfg {
		t.Errorf("Load().Config = %+v, want %+v", got.Config, cfg)
	}
	if got.Description != "bench modem" {
		t.Errorf("Load().Description = %q", got.Description)
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("CreatedAt not initialised: %+v", got)
	}
	if !got.LastUsedAt.IsZero() {
		t.Errorf("LastUsedAt = %v, want zero for a profile never used", got.LastUsedAt)
	}

	if _, err := os.Stat(m.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after Save")
	}
}

func TestFileConfigManager_SaveKeepsCreatedAt(t *testing.T) {
	m := newTestManager(t)

	if err := m.Save("p", validConfig(), "first"); err != nil {
		t.Fatal(err)
	}
	first, _ := m.Load("p")

	cfg := validConfig()
	cfg.BaudRate = 57600
	if err := m.Save("p", cfg, ""); err != nil {
		t.Fatal(err)
	}
	second, _ := m.Load("p")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on overwrite: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Description != "first" {
		t.Errorf("Description = %q, want kept %q", second.Description, "first")
	}
	if second.Config.BaudRate != 57600 {
		t.Errorf("BaudRate = %d, want 57600", second.Config.BaudRate)
	}
}

func TestFileConfigManager_SaveErrors(t *testing.T) {
	m := newTestManager(t)

	if err := m.Save("", validConfig(), ""); err == nil {
		t.Error("Save with empty name should fail")
	}

	bad := validConfig()
	bad.Format = "9N1"
	err := m.Save("bad", bad, "")
	if !errors.Is(err, serial.ErrInvalidFormat) {
		t.Errorf("Save with bad format error = %v, want ErrInvalidFormat", err)
	}
}

func TestFileConfigManager_LoadNotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Load("missing")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Load() error = %v, want ErrProfileNotFound", err)
	}
}

func TestFileConfigManager_ListSorted(t *testing.T) {
	m := newTestManager(t)

	for _, name := range []string{"zulu", "alpha", "mike"} {
		if err := m.Save(name, validConfig(), ""); err != nil {
			t.Fatal(err)
		}
	}

	profiles, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"alpha", "mike", "zulu"}
	if len(profiles) != len(want) {
		t.Fatalf("List() returned %d profiles, want %d", len(profiles), len(want))
	}
	for i, p := range profiles {
		if p.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, p.Name, want[i])
		}
	}
}

func TestFileConfigManager_ListEmpty(t *testing.T) {
	profiles, err := newTestManager(t).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("List() = %v, want empty", profiles)
	}
}

func TestFileConfigManager_Delete(t *testing.T) {
	m := newTestManager(t)
	if err := m.Save("p", validConfig(), ""); err != nil {
		t.Fatal(err)
	}

	if err := m.Delete("p"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if m.Exists("p") {
		t.Error("profile still exists after Delete")
	}
	if err := m.Delete("p"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("second Delete() error = %v, want ErrProfileNotFound", err)
	}
}

func TestFileConfigManager_Exists(t *testing.T) {
	m := newTestManager(t)
	if err := m.Save("p", validConfig(), ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want bool
	}{
		{"p", true},
		{"q", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := m.Exists(tt.name); got != tt.want {
			t.Errorf("Exists(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFileConfigManager_UpdateLastUsed(t *testing.T) {
	m := newTestManager(t)
	if err := m.Save("p", validConfig(), ""); err != nil {
		t.Fatal(err)
	}
	before, _ := m.Load("p")

	if err := m.UpdateLastUsed("p"); err != nil {
		t.Fatalf("UpdateLastUsed() error = %v", err)
	}
	after, _ := m.Load("p")

	if !after.LastUsedAt.After(before.LastUsedAt) {
		t.Errorf("LastUsedAt not advanced: %v -> %v", before.LastUsedAt, after.LastUsedAt)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Error("UpdateLastUsed changed CreatedAt")
	}

	if err := m.Save("p", validConfig(), "resaved"); err != nil {
		t.Fatal(err)
	}
	resaved, _ := m.Load("p")
	if !resaved.LastUsedAt.Equal(after.LastUsedAt) {
		t.Errorf("Save reset LastUsedAt: %v -> %v", after.LastUsedAt, resaved.LastUsedAt)
	}

	if err := m.UpdateLastUsed("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("UpdateLastUsed(missing) error = %v", err)
	}
}

func TestFileConfigManager_ExportImport(t *testing.T) {
	src := newTestManager(t)
	cfg := validConfig()
	cfg.Encoding = "windows-1252"
	if err := src.Save("legacy", cfg, "old PLC"); err != nil {
		t.Fatal(err)
	}

	exportPath := filepath.Join(t.TempDir(), "legacy.json")
	if err := src.Export("legacy", exportPath); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst := newTestManager(t)
	imported, err := dst.Import(exportPath)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if imported.Name != "legacy" || imported.Description != "old PLC" {
		t.Errorf("Import() = %+v", imported)
	}
	if imported.Config != cfg {
		t.Errorf("imported config = %+v, want %+v", imported.Config, cfg)
	}
	if !dst.Exists("legacy") {
		t.Error("imported profile not stored")
	}
}

func TestFileConfigManager_ExportImportErrors(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	if err := m.Export("missing", filepath.Join(dir, "x.json")); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Export(missing) error = %v", err)
	}
	if err := m.Export("missing", ""); err == nil {
		t.Error("Export with empty path should fail")
	}

	if _, err := m.Import(""); err == nil {
		t.Error("Import with empty path should fail")
	}
	if _, err := m.Import(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("Import of missing file should fail")
	}

	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Import(garbage); err == nil {
		t.Error("Import of invalid JSON should fail")
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"name":"x","config":{"port":"COM1","baud_rate":0,"format":"8N1"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Import(invalid); err == nil {
		t.Error("Import of invalid profile should fail")
	}
}

func TestFileConfigManager_CorruptFile(t *testing.T) {
	m := newTestManager(t)
	if err := os.MkdirAll(m.Dir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.Path(), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := m.List(); err == nil {
		t.Error("List() on corrupt file should fail")
	}
	if m.Exists("anything") {
		t.Error("Exists() on corrupt file should be false")
	}
	if err := m.Save("p", validConfig(), ""); err == nil {
		t.Error("Save() should not overwrite a corrupt file silently")
	}
}
