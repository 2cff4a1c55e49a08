package browser

import "testing"

func TestIsAdHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"ad.doubleclick.net", true},
		{"stats.g.doubleclick.net", true},
		{"DOUBLECLICK.NET", true},
		{"connect.facebook.net", true},
		{"example.com", false},
		{"cdn.example.com", false},
		{"images.example.com", false},
		// Suffix must match on a label boundary, not substring.
		{"notdoubleclick.net", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := isAdHost(tt.host); got != tt.want {
				t.Errorf("isAdHost(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}
