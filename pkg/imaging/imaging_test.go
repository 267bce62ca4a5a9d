package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatmanStack/canvas-demo/models"
)

// encodePNG 生成一张 w x h 的纯色测试图
func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// decodeResult 把 Normalize 的输出解回 image.Image
func decodeResult(t *testing.T, encoded string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestNormalizeEmptyInput(t *testing.T) {
	_, err := Normalize(nil, DefaultOptions())
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Input image is required.", ve.Message)
}

func TestNormalizeUnreadableInput(t *testing.T) {
	_, err := Normalize([]byte("not an image"), DefaultOptions())
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestNormalizeKeepsCompliantImage(t *testing.T) {
	in := encodePNG(t, 512, 512, color.RGBA{10, 20, 30, 255})
	encoded, err := Normalize(in, DefaultOptions())
	require.NoError(t, err)

	out := decodeResult(t, encoded)
	assert.Equal(t, 512, out.Bounds().Dx())
	assert.Equal(t, 512, out.Bounds().Dy())
}

func TestNormalizeFlattensAlphaToWhite(t *testing.T) {
	// 全透明图应平铺成纯白
	in := encodePNG(t, 400, 400, color.RGBA{0, 0, 0, 0})
	encoded, err := Normalize(in, DefaultOptions())
	require.NoError(t, err)

	out := decodeResult(t, encoded)
	r, g, b, a := out.At(200, 200).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestNormalizeClampsPixelBudget(t *testing.T) {
	opts := Options{MinSize: 10, MaxSize: 4096, MaxPixels: 10000}

	// 2:1 的图超出像素预算时等比缩小
	in := encodePNG(t, 400, 200, color.White)
	encoded, err := Normalize(in, opts)
	require.NoError(t, err)

	out := decodeResult(t, encoded)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	assert.LessOrEqual(t, w*h, opts.MaxPixels)
	assert.InDelta(t, 2.0, float64(w)/float64(h), 0.05)
}

func TestNormalizeClampsDimensionsIndependently(t *testing.T) {
	tests := []struct {
		name         string
		inW, inH     int
		wantW, wantH int
	}{
		{"width below minimum", 100, 500, 320, 500},
		{"both below minimum", 64, 64, 320, 320},
		{"height above maximum", 500, 5000, 500, 4096},
	}
	// MaxPixels 放大到不触发像素预算，只测边界收敛
	opts := Options{MinSize: 320, MaxSize: 4096, MaxPixels: 1 << 30}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := encodePNG(t, tt.inW, tt.inH, color.White)
			encoded, err := Normalize(in, opts)
			require.NoError(t, err)

			out := decodeResult(t, encoded)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}

func TestNormalizeOutputIsBase64PNG(t *testing.T) {
	in := encodePNG(t, 400, 400, color.RGBA{200, 100, 50, 255})
	encoded, err := Normalize(in, DefaultOptions())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
