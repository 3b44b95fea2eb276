package routes

import "testing"

func TestTypeAllowed(t *testing.T) {
	allowed := []string{"application/pdf", " application/x-pdf "}

	cases := []struct {
		contentType string
		want        bool
	}{
		{"application/pdf", true},
		{"Application/PDF", true},
		{"application/pdf; charset=binary", true},
		{"application/x-pdf", true},
		{"text/html", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := typeAllowed(allowed, tc.contentType); got != tc.want {
			t.Errorf("typeAllowed(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}
