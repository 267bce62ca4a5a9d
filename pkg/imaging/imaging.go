package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	"github.com/HatmanStack/canvas-demo/models"
)

// Nova Canvas 对输入图像的硬性约束
const (
	MinSize   = 320
	MaxSize   = 4096
	MaxPixels = 4194304
)

// Options 归一化参数，零值字段回落到默认约束
type Options struct {
	MinSize   int
	MaxSize   int
	MaxPixels int
}

func DefaultOptions() Options {
	return Options{MinSize: MinSize, MaxSize: MaxSize, MaxPixels: MaxPixels}
}

func (o Options) withDefaults() Options {
	if o.MinSize == 0 {
		o.MinSize = MinSize
	}
	if o.MaxSize == 0 {
		o.MaxSize = MaxSize
	}
	if o.MaxPixels == 0 {
		o.MaxPixels = MaxPixels
	}
	return o
}

// Normalize 把任意输入图像归一化为 API 可接受的编码形态：
// 解码 → 透明通道平铺到白底 → 像素总量收敛（保持宽高比）→
// 宽高各自收敛到 [MinSize, MaxSize] → PNG（最高压缩）→ base64。
// 注意：宽高收敛是各自独立进行的，单边越界时会改变宽高比，
// 这是沿用的线上行为，调用方不要依赖收敛后的比例。
func Normalize(raw []byte, opts Options) (string, error) {
	if len(raw) == 0 {
		return "", &models.ValidationError{Message: "Input image is required."}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", &models.ValidationError{Message: "Input image is unreadable: " + err.Error()}
	}

	opts = opts.withDefaults()
	img = flattenToWhite(img)
	img = clampPixels(img, opts.MaxPixels)
	img = clampDimensions(img, opts.MinSize, opts.MaxSize)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// flattenToWhite 以 alpha 通道为蒙版把图像铺到不透明白底上，
// 顺带把灰度/索引色等其他色彩模式统一成 RGBA。
func flattenToWhite(img image.Image) image.Image {
	dst := image.NewRGBA(img.Bounds())
	white := color.RGBA{255, 255, 255, 255}
	draw.Draw(dst, dst.Bounds(), &image.Uniform{white}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}

// clampPixels 像素总量超限时按原始宽高比等比缩小，
// 目标满足 w*h == maxPixels 且 w/h 不变。
func clampPixels(img image.Image, maxPixels int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w*h <= maxPixels {
		return img
	}

	aspect := float64(w) / float64(h)
	var newW, newH int
	if aspect > 1 {
		newW = int(math.Sqrt(float64(maxPixels) * aspect))
		newH = int(float64(newW) / aspect)
	} else {
		newH = int(math.Sqrt(float64(maxPixels) / aspect))
		newW = int(float64(newH) * aspect)
	}
	return resize(img, newW, newH)
}

// clampDimensions 任一边越界时把两边各自收敛到 [minSize, maxSize]
func clampDimensions(img image.Image, minSize, maxSize int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w >= minSize && w <= maxSize && h >= minSize && h <= maxSize {
		return img
	}

	newW := min(max(w, minSize), maxSize)
	newH := min(max(h, minSize), maxSize)
	return resize(img, newW, newH)
}

func resize(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)
	return dst
}
