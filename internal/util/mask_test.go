package util

import "testing"

func TestMaskSensitiveQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"untouched", "title=Emma&limit=1", "title=Emma&limit=1"},
		{"oauth callback", "code=abcdefghijkl&state=0123456789", "code=abcd...ijkl&state=0123...6789"},
		{"refresh token", "refresh_token=xyz", "refresh_token=x...z"},
		{"short value", "code=ab", "code=ab"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MaskSensitiveQuery(tt.raw); got != tt.want {
				t.Errorf("MaskSensitiveQuery(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestHideAPIKey(t *testing.T) {
	t.Parallel()

	if got := HideAPIKey("123456789"); got != "1234...6789" {
		t.Fatalf("HideAPIKey long = %q", got)
	}
	if got := HideAPIKey("12345"); got != "12...45" {
		t.Fatalf("HideAPIKey medium = %q", got)
	}
	if got := HideAPIKey("12"); got != "12" {
		t.Fatalf("HideAPIKey short = %q", got)
	}
}
