package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestImageValidateDetectsType(t *testing.T) {
	img := &Image{Data: pngHeader}

	require.NoError(t, img.Validate(5<<20))
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "upload.png", img.Name)
}

func TestImageValidateKeepsName(t *testing.T) {
	img := &Image{Name: "cat.png", Data: pngHeader}
	require.NoError(t, img.Validate(0))
	assert.Equal(t, "cat.png", img.Name)
}

func TestImageValidateRejects(t *testing.T) {
	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...)

	assert.ErrorIs(t, (&Image{}).Validate(10), ErrEmptyImage)
	assert.ErrorIs(t, (&Image{Data: big}).Validate(32), ErrImageTooLarge)
	assert.ErrorIs(t, (&Image{Data: []byte("just some text")}).Validate(0), ErrNotImage)
	assert.ErrorIs(t, (&Image{Data: []byte("just some text")}).Validate(0), ErrBadRequest)
}
