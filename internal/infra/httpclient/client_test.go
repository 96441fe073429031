package httpclient

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.Timeout != 60*time.Second {
		t.Fatalf("неожиданный таймаут: %v", c.Timeout)
	}
}

func TestNewRejectsEmptyBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(Options{CABundle: path}); err == nil {
		t.Fatalf("ожидали ошибку для файла без сертификатов")
	}
}

func TestNewMissingBundle(t *testing.T) {
	if _, err := New(Options{CABundle: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Fatalf("ожидали ошибку для отсутствующего файла")
	}
}
