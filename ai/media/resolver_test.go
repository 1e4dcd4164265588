package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMIME(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"application/octet-stream", "application/pdf"},
		{"audio/wave", "audio/wav"},
		{"audio/x-wav", "audio/wav"},
		{"application/wav", "audio/wav"},
		{"application/ogg", "audio/ogg"},
		{"application/mp3", "audio/mpeg"},
		{"audio/mp3", "audio/mpeg"},
		{"application/pdf", "application/pdf"},
		{"video/mp4", "video/mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMIME(tt.in))
		})
	}
}
