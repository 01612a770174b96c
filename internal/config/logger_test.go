package config

import "testing"

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(&Settings{LogLevel: "info", LogFormat: "json"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLogger_DebugLevel(t *testing.T) {
	logger, err := NewLogger(&Settings{LogLevel: "debug", LogFormat: "json"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	logger, err := NewLogger(&Settings{LogLevel: "warn", LogFormat: "text"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(&Settings{LogLevel: "banana", LogFormat: "json"})
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	_, err := NewLogger(&Settings{LogLevel: "info", LogFormat: "xml"})
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
}
