package models

// 任务状态常量
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TaskType 生成任务类型，取值与 Nova Canvas 的 taskType 枚举一致。
// IMAGE_CONDITIONING 是本服务内部的任务标签，上线时映射为 TEXT_IMAGE + 条件图参数。
type TaskType string

const (
	TaskTextToImage       TaskType = "TEXT_IMAGE"
	TaskInpainting        TaskType = "INPAINTING"
	TaskOutpainting       TaskType = "OUTPAINTING"
	TaskImageVariation    TaskType = "IMAGE_VARIATION"
	TaskImageConditioning TaskType = "IMAGE_CONDITIONING"
	TaskColorGuided       TaskType = "COLOR_GUIDED_GENERATION"
	TaskBackgroundRemoval TaskType = "BACKGROUND_REMOVAL"
)

// GenerationTask 用户提交的生成任务，图像字段为原始字节（JSON 中为 base64）。
// 每种任务类型只使用自己需要的字段，多余字段被忽略。
type GenerationTask struct {
	Type TaskType `json:"task_type" binding:"required"`

	Text         string `json:"text,omitempty"`
	NegativeText string `json:"negative_text,omitempty"`

	// inpainting / outpainting：maskPrompt 与 maskImage 二选一
	MaskPrompt string `json:"mask_prompt,omitempty"`
	Image      []byte `json:"image,omitempty"`
	MaskImage  []byte `json:"mask_image,omitempty"`

	// image variation：参考图列表
	Images [][]byte `json:"images,omitempty"`

	OutPaintingMode    string   `json:"outpainting_mode,omitempty"` // DEFAULT / PRECISE
	ControlMode        string   `json:"control_mode,omitempty"`     // CANNY_EDGE / SEGMENTATION
	ControlStrength    float64  `json:"control_strength,omitempty"`
	SimilarityStrength float64  `json:"similarity_strength,omitempty"`
	Colors             []string `json:"colors,omitempty"`
}

// EncodedTask 归一化之后的任务：所有图像字段均为 EncodedImage（base64 PNG），
// 只能由 logic 层通过 Image Normalizer 产出，交给 BuildRequest 纯映射。
type EncodedTask struct {
	Type TaskType

	Text         string
	NegativeText string

	MaskPrompt string
	Image      string
	MaskImage  string

	Images []string

	OutPaintingMode    string
	ControlMode        string
	ControlStrength    float64
	SimilarityStrength float64
	Colors             []string
}

// GenerationJob 队列与存储中流转的任务信封
type GenerationJob struct {
	TaskID    string                `json:"task_id"`
	Task      GenerationTask        `json:"task"`
	Config    ImageGenerationConfig `json:"config"`
	Priority  int                   `json:"priority,omitempty"`
	Status    string                `json:"status"`
	Result    string                `json:"result,omitempty"` // base64 图像或错误提示
	CreatedAt int64                 `json:"created_at,omitempty"`
}

// GenerationResponse 查询任务结果时返回给调用方的结构
type GenerationResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
}
