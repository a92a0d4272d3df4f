package casing

import "testing"

func TestLowerCamel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add", "add"},
		{"AddNumbers", "addNumbers"},
		{"GetHTTPStatus", "getHttpStatus"},
		{"UserID", "userId"},
		{"ID", "id"},
		{"ParseJSONBody", "parseJsonBody"},
		{"Camel2Case", "camel2Case"},
		{"already", "already"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := LowerCamel(tt.in); got != tt.want {
				t.Errorf("LowerCamel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
