package safety

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/HatmanStack/canvas-demo/models"
)

const (
	// DefaultEndpoint Falconsai NSFW 分类模型推理端点
	DefaultEndpoint = "https://api-inference.huggingface.co/models/Falconsai/nsfw_image_detection"

	// nsfw 分数超过该阈值判为不合规
	nsfwThreshold = 0.1

	// 重试上限，耗尽后永久失败
	maxAttempts = 30
)

// Filter 内容安全过滤器，对编码后的图像做外部 NSFW 分类。
// 分类服务冷启动时会返回 estimated_time，按其建议等待后重试；
// 其他瞬时错误按指数退避重试。
type Filter struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewFilter(token string) *Filter {
	return &Filter{
		endpoint: DefaultEndpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// 分类服务的两种响应形态
type classifierError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

type classifierScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Check 对 EncodedImage 做安全分类。
// 返回 nil 表示通过；models.ErrContentRejected 表示拒绝（硬闸门）；
// *models.ClassificationError 表示分类服务不可用或响应无法解析。
func (f *Filter) Check(ctx context.Context, encoded string) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &models.ClassificationError{Message: "NSFW check failed: invalid encoded image"}
	}

	backoff := time.Second
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		verdict, retryAfter, err := f.classify(ctx, raw)
		if err == nil {
			return verdict
		}

		var ce *models.ClassificationError
		if errors.As(err, &ce) {
			return err
		}
		if ctx.Err() != nil {
			return &models.ClassificationError{Message: "NSFW check cancelled: " + ctx.Err().Error()}
		}

		// 服务建议的等待时间优先，否则指数退避
		wait := retryAfter
		if wait <= 0 {
			wait = backoff
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
		zap.L().Warn("nsfw check retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := sleepCtx(ctx, wait); err != nil {
			return &models.ClassificationError{Message: "NSFW check cancelled: " + err.Error()}
		}
	}
	return &models.ClassificationError{Message: "NSFW check failed after multiple attempts"}
}

// classify 发起一次分类调用。返回值：
// verdict（nil 通过 / ErrContentRejected 拒绝）、服务建议的等待时间、瞬时错误。
func (f *Filter) classify(ctx context.Context, image []byte) (error, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("x-use-cache", "0")
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, 0, &models.ClassificationError{Message: "NSFW check failed: empty response"}
	}

	// 对象形态：模型仍在加载或服务报错
	if trimmed[0] == '{' {
		var ce classifierError
		if err := json.Unmarshal(trimmed, &ce); err != nil || ce.Error == "" {
			return nil, 0, &models.ClassificationError{Message: "NSFW check failed: invalid response format - " + string(trimmed)}
		}
		wait := time.Duration(ce.EstimatedTime * float64(time.Second))
		return nil, wait, errTransient{msg: ce.Error}
	}

	// 数组形态：分类分数
	var scores []classifierScore
	if err := json.Unmarshal(trimmed, &scores); err != nil {
		return nil, 0, &models.ClassificationError{Message: "NSFW check failed: invalid response format - " + err.Error()}
	}

	var nsfw float64
	for _, s := range scores {
		if s.Label == "nsfw" {
			nsfw = s.Score
			break
		}
	}
	zap.L().Info("nsfw check completed", zap.Float64("score", nsfw))
	if nsfw > nsfwThreshold {
		return models.ErrContentRejected, 0, nil
	}
	return nil, 0, nil
}

type errTransient struct{ msg string }

func (e errTransient) Error() string { return e.msg }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
