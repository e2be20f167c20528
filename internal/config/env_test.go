package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	t.Setenv("EPDKIT_TEST_VALUE", "direct")
	if got := Get("EPDKIT_TEST_VALUE", "fallback"); got != "direct" {
		t.Errorf("Get = %q, want direct", got)
	}
	if got := Get("EPDKIT_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("Get = %q, want fallback", got)
	}
}

func TestGetFileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EPDKIT_TEST_SECRET_FILE", path)
	if got := Get("EPDKIT_TEST_SECRET", "def"); got != "from-file" {
		t.Errorf("Get = %q, want trimmed file contents", got)
	}

	// A direct value wins over the _FILE indirection.
	t.Setenv("EPDKIT_TEST_SECRET", "direct")
	if got := Get("EPDKIT_TEST_SECRET", "def"); got != "direct" {
		t.Errorf("Get = %q, want direct", got)
	}
}

func TestGetInt(t *testing.T) {
	t.Setenv("EPDKIT_TEST_INT", "42")
	if got := GetInt("EPDKIT_TEST_INT", 7); got != 42 {
		t.Errorf("GetInt = %d, want 42", got)
	}
	t.Setenv("EPDKIT_TEST_INT", "not a number")
	if got := GetInt("EPDKIT_TEST_INT", 7); got != 7 {
		t.Errorf("GetInt = %d, want default 7", got)
	}
}

func TestGetBool(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{val: "1", want: true},
		{val: "Yes", want: true},
		{val: "t", want: true},
		{val: "0", def: true, want: false},
		{val: "no", def: true, want: false},
		{val: "maybe", def: true, want: true},
		{val: "", def: true, want: true},
	}
	for _, tt := range tests {
		t.Setenv("EPDKIT_TEST_BOOL", tt.val)
		if got := GetBool("EPDKIT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("GetBool(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration("30d"); err != nil || d != 30*24*time.Hour {
		t.Errorf("ParseDuration(30d) = %v, %v", d, err)
	}
	if d, err := ParseDuration("90s"); err != nil || d != 90*time.Second {
		t.Errorf("ParseDuration(90s) = %v, %v", d, err)
	}
	if _, err := ParseDuration("soon"); err == nil {
		t.Error("ParseDuration(soon) succeeded, want error")
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("EPDKIT_TEST_DUR", "2h")
	if got := GetDuration("EPDKIT_TEST_DUR", time.Minute); got != 2*time.Hour {
		t.Errorf("GetDuration = %v, want 2h", got)
	}
	t.Setenv("EPDKIT_TEST_DUR", "bogus")
	if got := GetDuration("EPDKIT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("GetDuration = %v, want default 1m", got)
	}
}
