package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		media       []byte
		contentType string
		wantMode    Mode
		wantErr     error
	}{
		{
			name:     "text_only",
			text:     "I feel okay today",
			wantMode: ModeText,
		},
		{
			name:     "text_wins_over_file",
			text:     "I feel okay today",
			media:    []byte("webm bytes"),
			wantMode: ModeText,
		},
		{
			name:        "file_only",
			media:       []byte("webm bytes"),
			contentType: "video/webm",
			wantMode:    ModeMedia,
		},
		{
			name:    "nothing",
			wantErr: ErrMissingInput,
		},
		{
			name:    "whitespace_text_no_file",
			text:    "   \n\t ",
			wantErr: ErrMissingInput,
		},
		{
			name:     "whitespace_text_with_file",
			text:     "   ",
			media:    []byte("webm bytes"),
			wantMode: ModeMedia,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.text, tt.media, tt.contentType)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, got.Mode)
		})
	}
}

func TestNormalizeTextPrecedenceDropsMedia(t *testing.T) {
	got, err := Normalize("hello", []byte("ignored"), "video/webm")
	require.NoError(t, err)
	assert.Equal(t, ModeText, got.Mode)
	assert.Empty(t, got.Media, "media must be dropped in text mode")
}

func TestNormalizeTrimsText(t *testing.T) {
	got, err := Normalize("  hello \n", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
}

func TestNormalizeDefaultsContentType(t *testing.T) {
	got, err := Normalize("", []byte{0x1a}, "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", got.ContentType)
}
