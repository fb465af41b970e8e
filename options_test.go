package raktr

import (
	"os"
	"testing"
	"time"
)

func TestLoadOptionsDefaults(t *testing.T) {
	o := loadOptions()
	if o.MaxTickInterval != defaultMaxTickInterval {
		t.Errorf("MaxTickInterval = %v, want default %v", o.MaxTickInterval, defaultMaxTickInterval)
	}
	if o.ReadBufferCap != defaultReadBufferCap {
		t.Errorf("ReadBufferCap = %d, want default %d", o.ReadBufferCap, defaultReadBufferCap)
	}
}

func TestWithMaxTickIntervalOverridesDefault(t *testing.T) {
	o := loadOptions(WithMaxTickInterval(250 * time.Millisecond))
	if o.MaxTickInterval != 250*time.Millisecond {
		t.Errorf("MaxTickInterval = %v, want 250ms", o.MaxTickInterval)
	}
}

func TestWithReadBufferCapOverridesDefault(t *testing.T) {
	o := loadOptions(WithReadBufferCap(4096))
	if o.ReadBufferCap != 4096 {
		t.Errorf("ReadBufferCap = %d, want 4096", o.ReadBufferCap)
	}
}

func TestLoadOptionsTOML(t *testing.T) {
	doc := `
max_tick_interval = 0.25
read_buffer_cap = 8192
log_path = "reactor.log"
log_max_size_mb = 50
log_max_backups = 3
log_max_age_days = 7
log_compress = false
`
	f, err := os.CreateTemp(t.TempDir(), "raktr-opts-*.toml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(doc); err != nil {
		t.Fatal(err)
	}
	f.Close()

	opts, err := LoadOptionsTOML(f.Name())
	if err != nil {
		t.Fatalf("LoadOptionsTOML: %v", err)
	}

	got := loadOptions(opts...)
	if got.MaxTickInterval != 250*time.Millisecond {
		t.Errorf("MaxTickInterval = %v, want 250ms", got.MaxTickInterval)
	}
	if got.ReadBufferCap != 8192 {
		t.Errorf("ReadBufferCap = %d, want 8192", got.ReadBufferCap)
	}
	if got.LogPath != "reactor.log" {
		t.Errorf("LogPath = %q, want reactor.log", got.LogPath)
	}
	if got.LogRotation.MaxSizeMB != 50 || got.LogRotation.MaxBackups != 3 || got.LogRotation.MaxAgeDays != 7 {
		t.Errorf("LogRotation = %+v, unexpected", got.LogRotation)
	}
}

func TestLoadOptionsTOMLMissingFile(t *testing.T) {
	if _, err := LoadOptionsTOML("/nonexistent/raktr.toml"); err == nil {
		t.Error("expected an error opening a nonexistent TOML file")
	}
}
