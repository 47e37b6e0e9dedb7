package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"valid alphanumeric", "cluster123", "cluster123"},
		{"valid with underscore hyphen dot", "cluster_1-west.us", "cluster_1-west.us"},
		{"empty string becomes unknown", "", "unknown"},
		{"spaces replaced", "cluster 123", "cluster_123"},
		{"special characters replaced", "cluster@east#1", "cluster_east_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeLabel(tt.input))
		})
	}
}

func TestSanitizeLabel_Truncates(t *testing.T) {
	long := strings.Repeat("a", MaxLabelLength+50)
	got := SanitizeLabel(long)
	assert.Len(t, got, MaxLabelLength)
}
