package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// TestWrapString tests that help texts are wrapped at word boundaries
func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Line exceeds %d characters: %q", Wrap, line)
		}
		if strings.HasPrefix(line, " ") || strings.HasSuffix(line, " ") {
			t.Errorf("Line has surrounding spaces: %q", line)
		}
	}

	if WrapString("") != "" {
		t.Error("Wrapping an empty string should return an empty string")
	}
}

// TestGetClientConfig tests reading the client configuration from viper and a config file
func TestGetClientConfig(t *testing.T) {
	defer viper.Reset()

	viper.Set("endpoint", "/tmp/flag.sock")
	viper.Set("retry-count", 4)
	viper.Set("request-timeout", 1500)

	conf, err := GetClientConfig()
	if err != nil {
		t.Fatalf("GetClientConfig failed: %v", err)
	}
	if conf.Endpoint != "/tmp/flag.sock" || conf.RetryCount != 4 || conf.RequestTimeoutMillis != 1500 {
		t.Errorf("Unexpected config %+v", conf)
	}

	path := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(path, []byte("[client]\nretry_count = 9\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	viper.Set("config", path)

	conf, err = GetClientConfig()
	if err != nil {
		t.Fatalf("GetClientConfig with file failed: %v", err)
	}
	if conf.RetryCount != 9 {
		t.Errorf("Config file should override the retry count, got %d", conf.RetryCount)
	}
	if conf.Endpoint != "/tmp/flag.sock" {
		t.Errorf("Keys missing from the file should keep their value, got %q", conf.Endpoint)
	}

	viper.Set("config", "")
	viper.Set("endpoint", "")
	if _, err := GetClientConfig(); err == nil {
		t.Error("An empty endpoint should be rejected")
	}
}
