package tutor

import (
	"strings"

	"github.com/pkg/errors"
)

// Part is one element of a multi-part request: either text or an attachment.
type Part struct {
	Text       string
	Attachment *Attachment
}

// IsText reports whether the part carries text only.
func (p Part) IsText() bool { return p.Attachment == nil }

// Request is what gets transmitted to the remote conversation for one turn.
// Exactly one of Text and Parts is set: a lone text part travels as plain
// text, anything else as the ordered part list (text first, attachment second).
type Request struct {
	Text  string
	Parts []Part
}

// IsPlainText reports whether the request is sent as a single string.
func (r Request) IsPlainText() bool { return r.Parts == nil }

// Validate checks the send precondition without building a request.
func Validate(text string, att *Attachment) error {
	if strings.TrimSpace(text) == "" && att.isEmpty() {
		return ErrEmptyMessage
	}
	if !att.isEmpty() && !IsSupportedMediaType(att.MediaType) {
		return errors.Wrapf(ErrUnsupportedAttachment, "%q", att.MediaType)
	}
	return nil
}

// BuildRequest assembles the request for text and an optional attachment.
func BuildRequest(text string, att *Attachment) (Request, error) {
	if err := Validate(text, att); err != nil {
		return Request{}, err
	}

	var parts []Part
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, Part{Text: t})
	}
	if !att.isEmpty() {
		parts = append(parts, Part{Attachment: &Attachment{
			Data:      att.Data,
			MediaType: normalizeMediaType(att.MediaType),
		}})
	}

	if len(parts) == 1 && parts[0].IsText() {
		return Request{Text: parts[0].Text}, nil
	}
	return Request{Parts: parts}, nil
}
