package config

import (
	"strings"
	"testing"
)

func TestValidatorRequireNonEmpty(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("name", "ok")
	if v.HasErrors() {
		t.Fatalf("unexpected errors: %v", v.Errors())
	}

	v.RequireNonEmpty("empty", "")
	if !v.HasErrors() {
		t.Fatal("expected error for empty value")
	}
	if v.Errors()[0].Field != "empty" {
		t.Fatalf("wrong field recorded: %v", v.Errors())
	}
}

func TestValidatorRequirePositive(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{1, false},
		{100, false},
		{0, true},
		{-5, true},
	}
	for _, tt := range tests {
		v := NewValidator().RequirePositive("n", tt.value)
		if v.HasErrors() != tt.wantErr {
			t.Fatalf("RequirePositive(%d): hasErrors=%v, want %v", tt.value, v.HasErrors(), tt.wantErr)
		}
	}
}

func TestValidatorRequireNonNegative(t *testing.T) {
	if NewValidator().RequireNonNegative("n", 0).HasErrors() {
		t.Fatal("zero must be accepted")
	}
	if !NewValidator().RequireNonNegative("n", -1).HasErrors() {
		t.Fatal("negative must be rejected")
	}
}

func TestValidatorValidateRange(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{5, false},
		{1, false},
		{10, false},
		{0, true},
		{11, true},
	}
	for _, tt := range tests {
		v := NewValidator().ValidateRange("n", tt.value, 1, 10)
		if v.HasErrors() != tt.wantErr {
			t.Fatalf("ValidateRange(%d): hasErrors=%v, want %v", tt.value, v.HasErrors(), tt.wantErr)
		}
	}
}

func TestValidatorValidateFloatRange(t *testing.T) {
	if NewValidator().ValidateFloatRange("t", 0.7, 0, 2).HasErrors() {
		t.Fatal("in-range float rejected")
	}
	if !NewValidator().ValidateFloatRange("t", 2.5, 0, 2).HasErrors() {
		t.Fatal("out-of-range float accepted")
	}
}

func TestValidatorValidateOneOf(t *testing.T) {
	if NewValidator().ValidateOneOf("mode", "disable", "disable", "require").HasErrors() {
		t.Fatal("allowed value rejected")
	}
	v := NewValidator().ValidateOneOf("mode", "bogus", "disable", "require")
	if !v.HasErrors() {
		t.Fatal("disallowed value accepted")
	}
}

func TestValidatorMultipleErrors(t *testing.T) {
	v := NewValidator().
		RequireNonEmpty("a", "").
		RequirePositive("b", -1).
		ValidatePort("c", 0)

	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(v.Errors()))
	}
	err := v.Error()
	if err == nil || !strings.Contains(err.Error(), "a:") {
		t.Fatalf("combined error missing field details: %v", err)
	}
}

func TestValidatorErrorKeepsFormatVerbs(t *testing.T) {
	err := NewValidator().RequireNonEmpty("load%d", "").Error()
	if err == nil || !strings.Contains(err.Error(), "load%d") {
		t.Fatalf("field name with format verb mangled: %v", err)
	}
}

func TestValidatePGVectorConfig(t *testing.T) {
	err := ValidatePGVectorConfig("localhost", 5432, "user", "pass", "ama", "disable", 1536, "passages")
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	err = ValidatePGVectorConfig("", 0, "", "", "", "bogus", 0, "")
	if err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestValidateLLMConfig(t *testing.T) {
	if err := ValidateLLMConfig("key", "gpt-4o", 0, 10000); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidateLLMConfig("", "gpt-4o", 3.0, 0); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestValidatePipelineConfig(t *testing.T) {
	if err := ValidatePipelineConfig(10, 15, 3, 5); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidatePipelineConfig(0, 15, -1, 5); err == nil {
		t.Fatal("invalid config accepted")
	}
}
