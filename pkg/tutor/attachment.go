package tutor

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// SupportedMediaTypes lists the image types the tutor accepts.
var SupportedMediaTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/heic",
	"image/heif",
}

// Attachment is a single image sent alongside a message.
type Attachment struct {
	Data      []byte `json:"data"`
	MediaType string `json:"media_type"`
}

// IsSupportedMediaType reports whether mediaType is one of SupportedMediaTypes.
// Parameters such as "; charset=binary" are ignored.
func IsSupportedMediaType(mediaType string) bool {
	mt := normalizeMediaType(mediaType)
	for _, s := range SupportedMediaTypes {
		if mt == s {
			return true
		}
	}
	return false
}

func normalizeMediaType(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// NewAttachment validates the media type and returns an attachment over data.
func NewAttachment(data []byte, mediaType string) (*Attachment, error) {
	if !IsSupportedMediaType(mediaType) {
		return nil, errors.Wrapf(ErrUnsupportedAttachment, "%q", mediaType)
	}
	return &Attachment{Data: data, MediaType: normalizeMediaType(mediaType)}, nil
}

// StripDataURLPrefix drops everything up to and including the first comma.
// Strings without a comma, or with nothing after it, are returned unchanged.
func StripDataURLPrefix(s string) string {
	_, payload, found := strings.Cut(s, ",")
	if !found || payload == "" {
		return s
	}
	return payload
}

// ParseDataURL decodes a data-URL-style string ("data:image/png;base64,....")
// or a bare base64 payload. When mediaType is empty it is taken from the
// data URL header.
func ParseDataURL(s string, mediaType string) (*Attachment, error) {
	s = strings.TrimSpace(s)
	if mediaType == "" {
		mediaType = mediaTypeFromDataURL(s)
	}
	payload := StripDataURLPrefix(s)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, "decode attachment payload")
	}
	return NewAttachment(data, mediaType)
}

func mediaTypeFromDataURL(s string) string {
	header, _, found := strings.Cut(s, ",")
	if !found || !strings.HasPrefix(header, "data:") {
		return ""
	}
	mt, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	return mt
}

// DataURL renders the attachment back into a data URL for inline display.
func (a *Attachment) DataURL() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", a.MediaType, base64.StdEncoding.EncodeToString(a.Data))
}

func (a *Attachment) isEmpty() bool {
	return a == nil || len(a.Data) == 0
}
