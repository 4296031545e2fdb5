package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "my-paste", want: "my-paste"},
		{name: "trimmed", in: "  notes_2024  ", want: "notes_2024"},
		{name: "allowed punctuation", in: "v1.2!", want: "v1.2!"},
		{name: "unicode becomes punycode", in: "café", want: "xn--caf-dma"},
		{name: "too short", in: "a", wantErr: true},
		{name: "too long", in: strings.Repeat("a", MaxURLLength+1), wantErr: true},
		{name: "space", in: "hello world", wantErr: true},
		{name: "slash", in: "a/b", wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
		{name: "reserved route", in: "Pastes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidValue))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("abc"))
	assert.False(t, IsValidURL(" abc"))
	assert.False(t, IsValidURL("café"))
	assert.True(t, IsValidURL("xn--caf-dma"))
}

func TestValidateContent(t *testing.T) {
	assert.Error(t, ValidateContent(""))
	assert.NoError(t, ValidateContent("x"))
	assert.NoError(t, ValidateContent(strings.Repeat("x", MaxContentLength)))
	assert.Error(t, ValidateContent(strings.Repeat("x", MaxContentLength+1)))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword(""))
	assert.NoError(t, ValidatePassword(strings.Repeat("p", MaxPasswordLength)))
	assert.Error(t, ValidatePassword(strings.Repeat("p", MaxPasswordLength+1)))
}

func TestNormalizeLink(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "https://example.com/favicon.ico", want: "https://example.com/favicon.ico"},
		{in: "https://Bücher.example/icon.png", want: "https://xn--bcher-kva.example/icon.png"},
		{in: "http://127.0.0.1:8080/f.png", want: "http://127.0.0.1:8080/f.png"},
		{in: "ftp://example.com/f.png", wantErr: true},
		{in: "javascript:alert(1)", wantErr: true},
		{in: "https:///nohost", wantErr: true},
		{in: "https://bad host.com/", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeLink(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestValidateColor(t *testing.T) {
	assert.NoError(t, ValidateColor(""))
	assert.NoError(t, ValidateColor("#ff00AA"))
	assert.Error(t, ValidateColor("ff00aa"))
	assert.Error(t, ValidateColor("#fff"))
}

func TestValidateMetadataText(t *testing.T) {
	assert.NoError(t, ValidateMetadataText("title", "desc"))
	assert.Error(t, ValidateMetadataText(strings.Repeat("t", MaxTitleLength+1), ""))
	assert.Error(t, ValidateMetadataText("", strings.Repeat("d", MaxDescriptionLength+1)))
}
