package core

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Image is an attachment selected for upload.
type Image struct {
	Name        string
	Data        []byte
	ContentType string
}

// Validate checks size and content, and fills ContentType from the sniffed bytes.
// maxBytes <= 0 disables the size limit.
func (img *Image) Validate(maxBytes int64) error {
	if img == nil || len(img.Data) == 0 {
		return ErrEmptyImage
	}
	if maxBytes > 0 && int64(len(img.Data)) > maxBytes {
		return ErrImageTooLarge
	}
	mt := mimetype.Detect(img.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ErrNotImage
	}
	img.ContentType = mt.String()
	if img.Name == "" {
		img.Name = "upload" + mt.Extension()
	}
	return nil
}
