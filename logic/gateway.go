package logic

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/HatmanStack/canvas-demo/dao/mysql"
	"github.com/HatmanStack/canvas-demo/models"
	"github.com/HatmanStack/canvas-demo/pkg/bedrock"
	"github.com/HatmanStack/canvas-demo/pkg/imaging"
)

// QuotaAdmitter 配额准入
type QuotaAdmitter interface {
	Admit(ctx context.Context, tier string) error
}

// AuditWriter 审计对象写入，返回写入的对象键
type AuditWriter interface {
	Store(ctx context.Context, body []byte, image []byte) (responseKey, imageKey string, err error)
}

// SafetyChecker 内容安全过滤
type SafetyChecker interface {
	Check(ctx context.Context, encoded string) error
}

// Gateway 生成网关：归一化输入 → 构建请求体 → 配额准入 →
// 调用远端模型 → 解码 → 审计落盘。
// audit 和 filter 可以为 nil（未配置时跳过对应环节）。
type Gateway struct {
	invoker       bedrock.Invoker
	imageModelID  string
	promptModelID string
	ledger        QuotaAdmitter
	audit         AuditWriter
	filter        SafetyChecker
	seedsPath     string
	imgOpts       imaging.Options
	auditIndex    bool // MySQL 审计索引是否启用
}

func NewGateway(invoker bedrock.Invoker, imageModelID, promptModelID string, ledger QuotaAdmitter, audit AuditWriter, filter SafetyChecker, seedsPath string) *Gateway {
	return &Gateway{
		invoker:       invoker,
		imageModelID:  imageModelID,
		promptModelID: promptModelID,
		ledger:        ledger,
		audit:         audit,
		filter:        filter,
		seedsPath:     seedsPath,
		imgOpts:       imaging.DefaultOptions(),
		auditIndex:    true,
	}
}

// DisableAuditIndex 关闭 MySQL 审计索引（测试用）
func (g *Gateway) DisableAuditIndex() { g.auditIndex = false }

// GenerateImage 生成图像，返回 PNG 字节。
// 所有失败都以错误类型区分：ValidationError / ErrContentRejected /
// ErrRateLimitExceeded / GenerationError / TransientServiceError，
// 调用方可直接用 err.Error() 渲染。
func (g *Gateway) GenerateImage(ctx context.Context, task models.GenerationTask, cfg models.ImageGenerationConfig) ([]byte, error) {
	encoded, err := g.prepareImages(ctx, task)
	if err != nil {
		return nil, err
	}

	body, err := models.BuildRequest(encoded, cfg)
	if err != nil {
		return nil, err
	}

	quality := cfg.Clamp().Quality
	if err := g.ledger.Admit(ctx, quality); err != nil {
		zap.L().Info("generation rejected by quota ledger", zap.String("quality", quality))
		return nil, err
	}

	raw, err := g.invoker.InvokeModel(ctx, g.imageModelID, body)
	if err != nil {
		zap.L().Error("model invocation failed", zap.Error(err))
		g.storeAudit(ctx, task, quality, body, nil, models.StatusFailed)
		return nil, err
	}

	image, _, err := decodeModelResponse(raw)
	if err != nil {
		g.storeAudit(ctx, task, quality, body, nil, models.StatusFailed)
		return nil, err
	}
	if image == nil {
		err := &models.GenerationError{Detail: "Unexpected response format."}
		g.storeAudit(ctx, task, quality, body, nil, models.StatusFailed)
		return nil, err
	}

	g.storeAudit(ctx, task, quality, body, image, models.StatusCompleted)
	return image, nil
}

// prepareImages 对任务携带的原始图像做归一化与安全检查，
// 产出只含 EncodedImage 的任务，交给纯函数 BuildRequest。
func (g *Gateway) prepareImages(ctx context.Context, t models.GenerationTask) (models.EncodedTask, error) {
	enc := models.EncodedTask{
		Type:               t.Type,
		Text:               t.Text,
		NegativeText:       t.NegativeText,
		MaskPrompt:         t.MaskPrompt,
		OutPaintingMode:    t.OutPaintingMode,
		ControlMode:        t.ControlMode,
		ControlStrength:    t.ControlStrength,
		SimilarityStrength: t.SimilarityStrength,
		Colors:             t.Colors,
	}

	encode := func(raw []byte) (string, error) {
		s, err := imaging.Normalize(raw, g.imgOpts)
		if err != nil {
			return "", err
		}
		if g.filter != nil {
			if err := g.filter.Check(ctx, s); err != nil {
				return "", err
			}
		}
		return s, nil
	}

	switch t.Type {
	case models.TaskTextToImage:
		// 纯文本任务，无图像输入

	case models.TaskInpainting, models.TaskOutpainting:
		s, err := encode(t.Image)
		if err != nil {
			return enc, err
		}
		enc.Image = s
		if len(t.MaskImage) > 0 {
			m, err := encode(t.MaskImage)
			if err != nil {
				return enc, err
			}
			enc.MaskImage = m
		}
		if t.Type == models.TaskOutpainting && enc.OutPaintingMode == "" {
			enc.OutPaintingMode = "DEFAULT"
		}

	case models.TaskImageConditioning:
		s, err := encode(t.Image)
		if err != nil {
			return enc, err
		}
		enc.Image = s
		if enc.ControlMode == "" {
			enc.ControlMode = "CANNY_EDGE"
		}
		if enc.ControlStrength == 0 {
			enc.ControlStrength = 0.7
		}

	case models.TaskImageVariation:
		if len(t.Images) == 0 {
			return enc, &models.ValidationError{Message: "At least one reference image is required."}
		}
		for _, raw := range t.Images {
			s, err := encode(raw)
			if err != nil {
				return enc, err
			}
			enc.Images = append(enc.Images, s)
		}
		if enc.SimilarityStrength == 0 {
			enc.SimilarityStrength = 0.5
		}

	case models.TaskColorGuided:
		// 参考图可缺省
		if len(t.Image) > 0 {
			s, err := encode(t.Image)
			if err != nil {
				return enc, err
			}
			enc.Image = s
		}

	case models.TaskBackgroundRemoval:
		s, err := encode(t.Image)
		if err != nil {
			return enc, err
		}
		enc.Image = s
	}

	return enc, nil
}

// decodeModelResponse 按响应形态分支：error / images / output.message。
// 返回图像字节或文本，二者只会有其一。
func decodeModelResponse(raw []byte) ([]byte, string, error) {
	var resp models.ModelResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", &models.GenerationError{Detail: "Unexpected response format."}
	}

	if resp.Error != nil {
		return nil, "", &models.GenerationError{Detail: *resp.Error}
	}

	if resp.Output != nil && len(resp.Output.Message.Content) > 0 {
		return nil, resp.Output.Message.Content[0].Text, nil
	}

	if len(resp.Images) > 0 {
		image, err := base64.StdEncoding.DecodeString(resp.Images[0])
		if err != nil {
			return nil, "", &models.GenerationError{Detail: "Unexpected response format."}
		}
		return image, "", nil
	}

	return nil, "", &models.GenerationError{Detail: "Unexpected response format."}
}

// storeAudit 尽力而为的审计落盘：S3 对象 + MySQL 索引行。
// 失败只记录日志，绝不影响主流程。
func (g *Gateway) storeAudit(ctx context.Context, task models.GenerationTask, quality string, body, image []byte, status string) {
	var responseKey, imageKey string
	if g.audit != nil {
		var err error
		responseKey, imageKey, err = g.audit.Store(ctx, body, image)
		if err != nil {
			zap.L().Warn("failed to store audit objects", zap.Error(err))
		}
	}
	if g.auditIndex {
		rec := &mysql.AuditRecord{
			TaskType:    string(task.Type),
			Quality:     quality,
			Status:      status,
			ResponseKey: responseKey,
			ImageKey:    imageKey,
		}
		if err := mysql.InsertAuditRecord(rec); err != nil {
			zap.L().Warn("failed to index audit record", zap.Error(err))
		}
	}
}
