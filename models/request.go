package models

import (
	"encoding/json"
	"fmt"
)

// 默认生成参数，与线上 UI 的初始值一致
const (
	DefaultDimension = 1024
	MinDimension     = 256
	MaxDimension     = 2048
	DefaultCfgScale  = 8.0
	MinCfgScale      = 1.0
	MaxCfgScale      = 20.0

	QualityStandard = "standard"
	QualityPremium  = "premium"
)

// 色彩引导生成在调用方未提供色板时使用的默认色板
var defaultColors = []string{
	"#FF5733", "#33FF57", "#3357FF", "#FF33A1", "#33FFF5",
	"#FF8C33", "#8C33FF", "#33FF8C", "#FF3333", "#33A1FF",
}

// ImageGenerationConfig Nova Canvas 的 imageGenerationConfig 对象。
// numberOfImages 固定为 1。
type ImageGenerationConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	Quality        string  `json:"quality"`
	CfgScale       float64 `json:"cfgScale"`
	Seed           int     `json:"seed"`
}

// DefaultImageGenerationConfig 返回默认配置（1024x1024 standard cfg=8 seed=0）
func DefaultImageGenerationConfig() ImageGenerationConfig {
	return ImageGenerationConfig{
		NumberOfImages: 1,
		Height:         DefaultDimension,
		Width:          DefaultDimension,
		Quality:        QualityStandard,
		CfgScale:       DefaultCfgScale,
		Seed:           0,
	}
}

// Clamp 将配置收敛到合法区间。宽高各自独立收敛，不校验 API 的宽高组合规则。
func (c ImageGenerationConfig) Clamp() ImageGenerationConfig {
	c.NumberOfImages = 1
	if c.Height == 0 {
		c.Height = DefaultDimension
	}
	if c.Width == 0 {
		c.Width = DefaultDimension
	}
	c.Height = clampInt(c.Height, MinDimension, MaxDimension)
	c.Width = clampInt(c.Width, MinDimension, MaxDimension)
	if c.Quality != QualityPremium {
		c.Quality = QualityStandard
	}
	if c.CfgScale == 0 {
		c.CfgScale = DefaultCfgScale
	}
	if c.CfgScale < MinCfgScale {
		c.CfgScale = MinCfgScale
	}
	if c.CfgScale > MaxCfgScale {
		c.CfgScale = MaxCfgScale
	}
	return c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Request Nova Canvas InvokeModel 请求体。每次只有一个参数对象非空，
// 空的可选字段一律不序列化（稀疏对象）。
type Request struct {
	TaskType                    string                       `json:"taskType"`
	TextToImageParams           *TextToImageParams           `json:"textToImageParams,omitempty"`
	InPaintingParams            *InPaintingParams            `json:"inPaintingParams,omitempty"`
	OutPaintingParams           *OutPaintingParams           `json:"outPaintingParams,omitempty"`
	ImageVariationParams        *ImageVariationParams        `json:"imageVariationParams,omitempty"`
	ColorGuidedGenerationParams *ColorGuidedGenerationParams `json:"colorGuidedGenerationParams,omitempty"`
	BackgroundRemovalParams     *BackgroundRemovalParams     `json:"backgroundRemovalParams,omitempty"`
	ImageGenerationConfig       *ImageGenerationConfig       `json:"imageGenerationConfig,omitempty"`
}

type TextToImageParams struct {
	Text         string `json:"text"`
	NegativeText string `json:"negativeText,omitempty"`
	// 条件生成（IMAGE_CONDITIONING）专用
	Image           string  `json:"image,omitempty"`
	ControlMode     string  `json:"controlMode,omitempty"`
	ControlStrength float64 `json:"controlStrength,omitempty"`
}

type InPaintingParams struct {
	Image        string `json:"image"`
	MaskPrompt   string `json:"maskPrompt,omitempty"`
	MaskImage    string `json:"maskImage,omitempty"`
	Text         string `json:"text,omitempty"`
	NegativeText string `json:"negativeText,omitempty"`
}

type OutPaintingParams struct {
	Image           string `json:"image"`
	MaskPrompt      string `json:"maskPrompt,omitempty"`
	MaskImage       string `json:"maskImage,omitempty"`
	Text            string `json:"text,omitempty"`
	NegativeText    string `json:"negativeText,omitempty"`
	OutPaintingMode string `json:"outPaintingMode,omitempty"` // DEFAULT / PRECISE
}

type ImageVariationParams struct {
	Images             []string `json:"images"`
	Text               string   `json:"text,omitempty"`
	NegativeText       string   `json:"negativeText,omitempty"`
	SimilarityStrength float64  `json:"similarityStrength,omitempty"`
}

type ColorGuidedGenerationParams struct {
	Text         string   `json:"text"`
	Colors       []string `json:"colors"`
	Image        string   `json:"image,omitempty"`
	NegativeText string   `json:"negativeText,omitempty"`
}

type BackgroundRemovalParams struct {
	Image string `json:"image"`
}

// BuildRequest 把编码后的任务映射为 InvokeModel 请求体。
// 任务类型映射表是封闭的：未知类型属于编程错误，直接 panic。
// BACKGROUND_REMOVAL 不携带 imageGenerationConfig。
func BuildRequest(t EncodedTask, cfg ImageGenerationConfig) ([]byte, error) {
	clamped := cfg.Clamp()
	req := Request{ImageGenerationConfig: &clamped}

	switch t.Type {
	case TaskTextToImage:
		req.TaskType = string(TaskTextToImage)
		req.TextToImageParams = &TextToImageParams{
			Text:         t.Text,
			NegativeText: t.NegativeText,
		}

	case TaskImageConditioning:
		if t.Image == "" {
			return nil, &ValidationError{Message: "Primary image is required."}
		}
		// 条件生成走 TEXT_IMAGE 通道，附加条件图与控制参数
		req.TaskType = string(TaskTextToImage)
		req.TextToImageParams = &TextToImageParams{
			Text:            t.Text,
			NegativeText:    t.NegativeText,
			Image:           t.Image,
			ControlMode:     t.ControlMode,
			ControlStrength: t.ControlStrength,
		}

	case TaskInpainting:
		params, err := maskParams(t)
		if err != nil {
			return nil, err
		}
		req.TaskType = string(TaskInpainting)
		req.InPaintingParams = &InPaintingParams{
			Image:        params.image,
			MaskPrompt:   params.maskPrompt,
			MaskImage:    params.maskImage,
			Text:         t.Text,
			NegativeText: t.NegativeText,
		}

	case TaskOutpainting:
		params, err := maskParams(t)
		if err != nil {
			return nil, err
		}
		req.TaskType = string(TaskOutpainting)
		req.OutPaintingParams = &OutPaintingParams{
			Image:           params.image,
			MaskPrompt:      params.maskPrompt,
			MaskImage:       params.maskImage,
			Text:            t.Text,
			NegativeText:    t.NegativeText,
			OutPaintingMode: t.OutPaintingMode,
		}

	case TaskImageVariation:
		if len(t.Images) == 0 {
			return nil, &ValidationError{Message: "At least one reference image is required."}
		}
		req.TaskType = string(TaskImageVariation)
		req.ImageVariationParams = &ImageVariationParams{
			Images:             t.Images,
			Text:               t.Text,
			NegativeText:       t.NegativeText,
			SimilarityStrength: t.SimilarityStrength,
		}

	case TaskColorGuided:
		colors := t.Colors
		if len(colors) == 0 {
			colors = defaultColors
		}
		req.TaskType = string(TaskColorGuided)
		req.ColorGuidedGenerationParams = &ColorGuidedGenerationParams{
			Text:         t.Text,
			Colors:       colors,
			Image:        t.Image,
			NegativeText: t.NegativeText,
		}

	case TaskBackgroundRemoval:
		if t.Image == "" {
			return nil, &ValidationError{Message: "Primary image is required."}
		}
		req.TaskType = string(TaskBackgroundRemoval)
		req.BackgroundRemovalParams = &BackgroundRemovalParams{Image: t.Image}
		req.ImageGenerationConfig = nil

	default:
		panic(fmt.Sprintf("models: unknown task type %q", t.Type))
	}

	return json.Marshal(req)
}

type maskPair struct {
	image      string
	maskPrompt string
	maskImage  string
}

// maskPrompt 与 maskImage 二选一，且必须有一个
func maskParams(t EncodedTask) (maskPair, error) {
	if t.Image == "" {
		return maskPair{}, &ValidationError{Message: "Primary image is required."}
	}
	if t.MaskPrompt != "" && t.MaskImage != "" {
		return maskPair{}, &ValidationError{Message: "You must specify either maskPrompt or maskImage, but not both."}
	}
	if t.MaskPrompt == "" && t.MaskImage == "" {
		return maskPair{}, &ValidationError{Message: "You must specify either maskPrompt or maskImage."}
	}
	return maskPair{image: t.Image, maskPrompt: t.MaskPrompt, maskImage: t.MaskImage}, nil
}
