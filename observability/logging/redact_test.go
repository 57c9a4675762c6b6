package logging

import "testing"

func TestMaskSecretRedactsValue(t *testing.T) {
	attr := MaskSecret("token", "super-secret")
	if attr.Key != "token" {
		t.Fatalf("key = %q, want token", attr.Key)
	}
	if got := attr.Value.String(); got != RedactedValue {
		t.Fatalf("value = %q, want %q", got, RedactedValue)
	}
}

func TestMaskSecretKeepsEmptyValue(t *testing.T) {
	attr := MaskSecret("token", "  ")
	if got := attr.Value.String(); got != "  " {
		t.Fatalf("value = %q, want the original whitespace", got)
	}
}
