package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"json fence", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"bare fence", "```\n[]\n```", "[]"},
		{"surrounding space", "  ```json\n[]\n```  \n", "[]"},
		{"no fence", `[{"a":1}]`, `[{"a":1}]`},
		{"crlf", "```json\r\n[]\r\n```", "[]"},
		{"unterminated", "```json\n[]", "```json\n[]"},
		{"single line", "```json []```", "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestSniffMimeHTTP(t *testing.T) {
	assert.Equal(t, "image/jpeg", SniffMimeHTTP([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "image/png", SniffMimeHTTP([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}))
	assert.Equal(t, "application/octet-stream", SniffMimeHTTP(nil))
	assert.Equal(t, "text/plain; charset=utf-8", SniffMimeHTTP([]byte("hello")))
}

func TestPickMIME(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF}
	assert.Equal(t, "image/webp", PickMIME("image/webp", "image/png", jpeg))
	assert.Equal(t, "image/png", PickMIME("", "image/png", jpeg))
	assert.Equal(t, "image/jpeg", PickMIME("", "", jpeg))
	assert.Equal(t, "image/jpeg", PickMIME("", "", nil))
}

func TestMIMEByName(t *testing.T) {
	assert.Equal(t, "image/jpeg", MIMEByName("a/B.JPG"))
	assert.Equal(t, "image/png", MIMEByName("x.png"))
	assert.Empty(t, MIMEByName("notes.txt"))
	assert.True(t, IsImageMIME("Image/PNG"))
	assert.False(t, IsImageMIME("text/plain"))
}
