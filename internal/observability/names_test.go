package observability

import "testing"

func TestNormalizeEventType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"known run.succeeded", "run.succeeded", "run.succeeded"},
		{"known run.failed", "run.failed", "run.failed"},
		{"unknown empty", "", "unknown"},
		{"unknown random", "some.other.event", "unknown"},
		{"unknown typo", "run.succeded", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEventType(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeEventType(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeRunState(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"validating", "validating", "validating"},
		{"succeeded", "succeeded", "succeeded"},
		{"failed", "failed", "failed"},
		{"unknown empty", "", "unknown"},
		{"unknown random", "paused", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRunState(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeRunState(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"success", "success", "success"},
		{"retry", "retry", "retry"},
		{"failed_final", "failed_final", "failed_final"},
		{"other empty", "", "other"},
		{"other random", "timeout", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeStatus(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"openai", "openai", "openai"},
		{"google", "google", "google"},
		{"mock", "mock", "mock"},
		{"other empty", "", "other"},
		{"other random", "azure", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeProvider(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeProvider(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeDependency(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"oracle", "oracle", "oracle"},
		{"database", "database", "database"},
		{"source", "source", "source"},
		{"other empty", "", "other"},
		{"other random", "smtp", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDependency(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeDependency(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
