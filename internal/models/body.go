package models

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the content type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVoice Kind = "voice"
	KindGIF   Kind = "gif"
)

var ErrInvalidBody = errors.New("invalid message body")

// IsMedia reports whether k carries a media reference.
func (k Kind) IsMedia() bool {
	return k == KindImage || k == KindVoice || k == KindGIF
}

// Body is the content of a message. It can only be built through the
// constructors, so a Body value always satisfies: text has content and no
// media reference, media kinds have a media reference.
type Body struct {
	kind     Kind
	content  string
	mediaRef string
}

// Text builds a plain text body.
func Text(content string) (Body, error) {
	if strings.TrimSpace(content) == "" {
		return Body{}, fmt.Errorf("%w: text message needs content", ErrInvalidBody)
	}
	return Body{kind: KindText, content: content}, nil
}

// Media builds an image, voice or gif body. caption may be empty.
func Media(kind Kind, mediaRef, caption string) (Body, error) {
	if !kind.IsMedia() {
		return Body{}, fmt.Errorf("%w: %q is not a media kind", ErrInvalidBody, kind)
	}
	if strings.TrimSpace(mediaRef) == "" {
		return Body{}, fmt.Errorf("%w: %s message needs a media reference", ErrInvalidBody, kind)
	}
	return Body{kind: kind, content: caption, mediaRef: mediaRef}, nil
}

// ParseBody builds a Body from loosely typed wire fields. An empty kind means
// text.
func ParseBody(kind, content, mediaRef string) (Body, error) {
	k := Kind(kind)
	if k == "" {
		k = KindText
	}
	switch {
	case k == KindText:
		if mediaRef != "" {
			return Body{}, fmt.Errorf("%w: text message cannot carry a media reference", ErrInvalidBody)
		}
		return Text(content)
	case k.IsMedia():
		return Media(k, mediaRef, content)
	default:
		return Body{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidBody, kind)
	}
}

func (b Body) Kind() Kind       { return b.kind }
func (b Body) Content() string  { return b.content }
func (b Body) MediaRef() string { return b.mediaRef }
