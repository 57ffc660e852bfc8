package validation

import (
	"testing"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errors := Validate(
		Required("agent_id", "a1"),
		MaxLength("agent_id", "a1", 128),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	errors = Validate(
		Required("agent_id", ""),
		PrintableASCII("agent_id", "bad\x01id"),
	)
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errors))
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", "hello", 10)(); err != nil {
		t.Error("Expected no error for string under limit")
	}
	if err := MaxLength("field", "hello", 5)(); err != nil {
		t.Error("Expected no error for string at limit")
	}
	if err := MaxLength("field", "hello world", 5)(); err == nil {
		t.Error("Expected error for string over limit")
	}
}

func TestPrintableASCII(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"a1", true},
		{"agent-42", true},
		{"", true}, // empty is valid for this check; pair with Required
		{"bad\x00id", false},
		{"bad\nid", false},
	}

	for _, tc := range tests {
		err := PrintableASCII("agent_id", tc.value)()
		valid := err == nil
		if valid != tc.valid {
			t.Errorf("PrintableASCII(%q) valid=%v, want %v", tc.value, valid, tc.valid)
		}
	}
}
