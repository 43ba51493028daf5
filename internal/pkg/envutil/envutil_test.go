package envutil

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("X_STR", "  value  ")
	if got := GetEnv("X_STR", "def"); got != "value" {
		t.Fatalf("trimmed value: want=value got=%q", got)
	}
	if got := GetEnv("X_UNSET", "def"); got != "def" {
		t.Fatalf("default: want=def got=%q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("X_INT", "42")
	if got := GetEnvInt("X_INT", 1); got != 42 {
		t.Fatalf("want=42 got=%d", got)
	}
	t.Setenv("X_BAD", "nope")
	if got := GetEnvInt("X_BAD", 7); got != 7 {
		t.Fatalf("bad value falls back: want=7 got=%d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("X_FLOAT", "0.75")
	if got := GetEnvFloat("X_FLOAT", 0); got != 0.75 {
		t.Fatalf("want=0.75 got=%v", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "on"} {
		t.Setenv("X_BOOL", v)
		if !GetEnvBool("X_BOOL", false) {
			t.Fatalf("%q must parse true", v)
		}
	}
	t.Setenv("X_BOOL", "maybe")
	if !GetEnvBool("X_BOOL", true) {
		t.Fatal("unparseable value falls back to default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_DUR", "90s")
	if got := GetEnvDuration("X_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("want=90s got=%v", got)
	}
}
