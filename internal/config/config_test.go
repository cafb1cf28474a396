package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue string
		expected     string
	}{
		{
			name:         "returns value when env var is set",
			key:          "TEST_STRING_VAR",
			value:        "custom-value",
			defaultValue: "default-value",
			expected:     "custom-value",
		},
		{
			name:         "returns default when env var is not set",
			key:          "TEST_UNSET_VAR",
			value:        "",
			defaultValue: "default-value",
			expected:     "default-value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}
			result := getEnv(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue int
		expected     int
	}{
		{
			name:         "returns parsed value when env var is valid int",
			key:          "TEST_INT_VAR",
			value:        "42",
			defaultValue: 10,
			expected:     42,
		},
		{
			name:         "returns default when env var is not set",
			key:          "TEST_UNSET_INT_VAR",
			value:        "",
			defaultValue: 10,
			expected:     10,
		},
		{
			name:         "returns default when env var is not a valid int",
			key:          "TEST_INVALID_INT_VAR",
			value:        "not-a-number",
			defaultValue: 10,
			expected:     10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}
			result := getEnvAsInt(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnvAsInt(%q, %d) = %d, want %d", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue float64
		expected     float64
	}{
		{
			name:         "returns parsed value when env var is valid float",
			key:          "TEST_FLOAT_VAR",
			value:        "0.35",
			defaultValue: 0.2,
			expected:     0.35,
		},
		{
			name:         "returns default when env var is not set",
			key:          "TEST_UNSET_FLOAT_VAR",
			value:        "",
			defaultValue: 0.2,
			expected:     0.2,
		},
		{
			name:         "returns default when env var is not a valid float",
			key:          "TEST_INVALID_FLOAT_VAR",
			value:        "zero point two",
			defaultValue: 0.2,
			expected:     0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}
			result := getEnvAsFloat(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnvAsFloat(%q, %v) = %v, want %v", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{
			name:         "returns parsed value when env var is valid duration",
			key:          "TEST_DURATION_VAR",
			value:        "500ms",
			defaultValue: time.Second,
			expected:     500 * time.Millisecond,
		},
		{
			name:         "returns default when env var is not set",
			key:          "TEST_UNSET_DURATION_VAR",
			value:        "",
			defaultValue: 2 * time.Second,
			expected:     2 * time.Second,
		},
		{
			name:         "returns default when env var is not a valid duration",
			key:          "TEST_INVALID_DURATION_VAR",
			value:        "two seconds",
			defaultValue: 2 * time.Second,
			expected:     2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}
			result := getEnvAsDuration(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnvAsDuration(%q, %v) = %v, want %v", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("returns error when API_KEY is not set", func(t *testing.T) {
		t.Setenv("API_KEY", "")
		_, err := Load()
		if err == nil {
			t.Fatal("Load() expected error when API_KEY is not set, got nil")
		}
	})

	t.Run("returns defaults when only API_KEY is set", func(t *testing.T) {
		t.Setenv("API_KEY", "test-api-key")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() unexpected error: %v", err)
		}
		if cfg.APIKey != "test-api-key" {
			t.Errorf("APIKey = %q, want %q", cfg.APIKey, "test-api-key")
		}
		if cfg.Port != "8080" {
			t.Errorf("Port = %q, want %q", cfg.Port, "8080")
		}
		if cfg.BatchSize != 40 {
			t.Errorf("BatchSize = %d, want 40", cfg.BatchSize)
		}
		if cfg.MaxConcurrentBatches != 2 {
			t.Errorf("MaxConcurrentBatches = %d, want 2", cfg.MaxConcurrentBatches)
		}
		if cfg.ValidationMaxAttempts != 3 {
			t.Errorf("ValidationMaxAttempts = %d, want 3", cfg.ValidationMaxAttempts)
		}
		if cfg.ValidationRetryBase != time.Second {
			t.Errorf("ValidationRetryBase = %v, want 1s", cfg.ValidationRetryBase)
		}
		if cfg.ClassificationMaxAttempts != 6 {
			t.Errorf("ClassificationMaxAttempts = %d, want 6", cfg.ClassificationMaxAttempts)
		}
		if cfg.ClassificationRetryBase != 2*time.Second {
			t.Errorf("ClassificationRetryBase = %v, want 2s", cfg.ClassificationRetryBase)
		}
		if cfg.OracleProvider != "openai" {
			t.Errorf("OracleProvider = %q, want %q", cfg.OracleProvider, "openai")
		}
		if cfg.EmbeddingDimensions != 1536 {
			t.Errorf("EmbeddingDimensions = %d, want 1536", cfg.EmbeddingDimensions)
		}
		if cfg.ErrorRateThreshold != 0.2 {
			t.Errorf("ErrorRateThreshold = %v, want 0.2", cfg.ErrorRateThreshold)
		}
		if cfg.ClusterDistanceThreshold != 0.4 {
			t.Errorf("ClusterDistanceThreshold = %v, want 0.4", cfg.ClusterDistanceThreshold)
		}
		if cfg.ClusterMinPopulation != 3 {
			t.Errorf("ClusterMinPopulation = %d, want 3", cfg.ClusterMinPopulation)
		}
	})

	t.Run("overrides defaults from environment", func(t *testing.T) {
		t.Setenv("API_KEY", "test-api-key")
		t.Setenv("BATCH_SIZE", "25")
		t.Setenv("MAX_CONCURRENT_BATCHES", "4")
		t.Setenv("ORACLE_PROVIDER", "google")
		t.Setenv("CLASSIFICATION_RETRY_BASE", "3s")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() unexpected error: %v", err)
		}
		if cfg.BatchSize != 25 {
			t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
		}
		if cfg.MaxConcurrentBatches != 4 {
			t.Errorf("MaxConcurrentBatches = %d, want 4", cfg.MaxConcurrentBatches)
		}
		if cfg.OracleProvider != "google" {
			t.Errorf("OracleProvider = %q, want %q", cfg.OracleProvider, "google")
		}
		if cfg.ClassificationRetryBase != 3*time.Second {
			t.Errorf("ClassificationRetryBase = %v, want 3s", cfg.ClassificationRetryBase)
		}
	})

	t.Run("returns error for non-positive BATCH_SIZE", func(t *testing.T) {
		t.Setenv("API_KEY", "test-api-key")
		t.Setenv("BATCH_SIZE", "0")
		_, err := Load()
		if err == nil {
			t.Fatal("Load() expected error for BATCH_SIZE=0, got nil")
		}
	})

	t.Run("returns error for out-of-range ERROR_THRESHOLD", func(t *testing.T) {
		t.Setenv("API_KEY", "test-api-key")
		t.Setenv("ERROR_THRESHOLD", "1.5")
		_, err := Load()
		if err == nil {
			t.Fatal("Load() expected error for ERROR_THRESHOLD=1.5, got nil")
		}
	})

	t.Run("returns error for out-of-range CLUSTER_DISTANCE_THRESHOLD", func(t *testing.T) {
		t.Setenv("API_KEY", "test-api-key")
		t.Setenv("CLUSTER_DISTANCE_THRESHOLD", "2.5")
		_, err := Load()
		if err == nil {
			t.Fatal("Load() expected error for CLUSTER_DISTANCE_THRESHOLD=2.5, got nil")
		}
	})
}
