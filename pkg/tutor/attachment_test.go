package tutor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripDataURLPrefix(t *testing.T) {
	cases := map[string]string{
		"data:image/png;base64,AAAA": "AAAA",
		"AAAA":                       "AAAA",
		"a,b,c":                      "b,c",
		"data:image/png;base64,":     "data:image/png;base64,",
	}
	for in, want := range cases {
		require.Equal(t, want, StripDataURLPrefix(in), in)
	}
}

func TestParseDataURLTakesMediaTypeFromHeader(t *testing.T) {
	att, err := ParseDataURL("data:image/webp;base64,UklGRg==", "")
	require.NoError(t, err)
	require.Equal(t, "image/webp", att.MediaType)
	require.Equal(t, []byte("RIFF"), att.Data)
}

func TestParseDataURLBarePayload(t *testing.T) {
	att, err := ParseDataURL("/9j/4A==", "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, att.Data)
}

func TestParseDataURLRejectsUnsupported(t *testing.T) {
	_, err := ParseDataURL("data:image/gif;base64,R0lGODlh", "")
	require.ErrorIs(t, err, ErrUnsupportedAttachment)

	_, err = ParseDataURL("data:image/png;base64,not base64!", "")
	require.Error(t, err)
}

func TestIsSupportedMediaType(t *testing.T) {
	for _, mt := range []string{"image/jpeg", "IMAGE/PNG", "image/webp", "image/heic", "image/heif; charset=binary"} {
		require.True(t, IsSupportedMediaType(mt), mt)
	}
	for _, mt := range []string{"", "image/gif", "application/pdf", "text/plain"} {
		require.False(t, IsSupportedMediaType(mt), mt)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	att := &Attachment{Data: []byte{1, 2, 3}, MediaType: "image/png"}
	back, err := ParseDataURL(att.DataURL(), "")
	require.NoError(t, err)
	require.Equal(t, att, back)
}
