package remote

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestSimulator_ReturnsPNG(t *testing.T) {
	s := NewSimulator(0)
	up := Upload{Filename: "a.jpg", MediaType: "image/jpeg", Data: testJPEG(t)}

	out, err := s.RemoveBackground(context.Background(), up)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, pngMagic))

	bordered, err := s.AddBorder(context.Background(), Upload{Data: out}, 5, "#000000")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(bordered, pngMagic))
}

func TestSimulator_RejectsGarbage(t *testing.T) {
	_, err := NewSimulator(0).RemoveBackground(context.Background(), Upload{Data: []byte("not an image")})
	require.Error(t, err)
}

func TestSimulator_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulator(time.Hour).RemoveBackground(ctx, Upload{Data: testJPEG(t)})
	require.ErrorIs(t, err, context.Canceled)
}
