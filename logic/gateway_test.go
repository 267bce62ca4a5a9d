package logic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatmanStack/canvas-demo/models"
	"github.com/HatmanStack/canvas-demo/pkg/bedrock"
)

// --- 测试替身 -----------------------------------------------------------

type fakeAdmitter struct {
	err   error
	calls int
	tiers []string
}

func (f *fakeAdmitter) Admit(ctx context.Context, tier string) error {
	f.calls++
	f.tiers = append(f.tiers, tier)
	return f.err
}

type fakeAudit struct {
	bodies [][]byte
	images [][]byte
}

func (f *fakeAudit) Store(ctx context.Context, body, image []byte) (string, string, error) {
	f.bodies = append(f.bodies, body)
	f.images = append(f.images, image)
	return "responses/fake_response.json", "images/fake_image.png", nil
}

type fakeFilter struct {
	err   error
	calls int
}

func (f *fakeFilter) Check(ctx context.Context, encoded string) error {
	f.calls++
	return f.err
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageResponse(t *testing.T, raw []byte) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"images": []string{base64.StdEncoding.EncodeToString(raw)},
	})
	require.NoError(t, err)
	return b
}

func newTestGateway(invoker bedrock.Invoker, ledger *fakeAdmitter, audit *fakeAudit, filter *fakeFilter) *Gateway {
	var f SafetyChecker
	if filter != nil {
		f = filter
	}
	var a AuditWriter
	if audit != nil {
		a = audit
	}
	g := NewGateway(invoker, "image-model", "prompt-model", ledger, a, f, "")
	g.DisableAuditIndex()
	return g
}

// --- GenerateImage ------------------------------------------------------

func TestGenerateImageHappyPath(t *testing.T) {
	want := testPNG(t, 320, 320)
	mock := &bedrock.MockInvoker{Response: imageResponse(t, want)}
	ledger := &fakeAdmitter{}
	audit := &fakeAudit{}
	g := newTestGateway(mock, ledger, audit, nil)

	got, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type: models.TaskTextToImage,
		Text: "a quiet harbor",
	}, models.ImageGenerationConfig{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, []string{"image-model"}, mock.ModelIDs)
	assert.Contains(t, string(mock.Bodies[0]), `"taskType":"TEXT_IMAGE"`)

	assert.Equal(t, []string{"standard"}, ledger.tiers)
	// 审计记录请求体和结果图
	require.Len(t, audit.bodies, 1)
	assert.Equal(t, want, audit.images[0])
}

func TestGenerateImagePremiumTier(t *testing.T) {
	mock := &bedrock.MockInvoker{Response: imageResponse(t, testPNG(t, 320, 320))}
	ledger := &fakeAdmitter{}
	g := newTestGateway(mock, ledger, nil, nil)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type: models.TaskTextToImage,
		Text: "x",
	}, models.ImageGenerationConfig{Quality: models.QualityPremium})
	require.NoError(t, err)
	assert.Equal(t, []string{"premium"}, ledger.tiers)
}

func TestGenerateImageQuotaRejected(t *testing.T) {
	mock := &bedrock.MockInvoker{}
	ledger := &fakeAdmitter{err: models.ErrRateLimitExceeded}
	g := newTestGateway(mock, ledger, nil, nil)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type: models.TaskTextToImage,
		Text: "x",
	}, models.ImageGenerationConfig{})
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
	// 配额拒绝后不得调用模型
	assert.Equal(t, 0, mock.CallCount())
}

func TestGenerateImageContentRejected(t *testing.T) {
	mock := &bedrock.MockInvoker{}
	ledger := &fakeAdmitter{}
	filter := &fakeFilter{err: models.ErrContentRejected}
	g := newTestGateway(mock, ledger, nil, filter)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type:       models.TaskInpainting,
		Image:      testPNG(t, 320, 320),
		MaskPrompt: "the sky",
	}, models.ImageGenerationConfig{})
	assert.ErrorIs(t, err, models.ErrContentRejected)
	assert.Equal(t, models.NotAppropriateMessage, err.Error())
	// 安全拒绝是硬闸门：既不占配额也不调模型
	assert.Equal(t, 0, ledger.calls)
	assert.Equal(t, 0, mock.CallCount())
}

func TestGenerateImageFilterChecksEveryImage(t *testing.T) {
	mock := &bedrock.MockInvoker{Response: imageResponse(t, testPNG(t, 320, 320))}
	filter := &fakeFilter{}
	g := newTestGateway(mock, &fakeAdmitter{}, nil, filter)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type:   models.TaskImageVariation,
		Text:   "variations",
		Images: [][]byte{testPNG(t, 320, 320), testPNG(t, 320, 320)},
	}, models.ImageGenerationConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, filter.calls)
}

func TestGenerateImageModelError(t *testing.T) {
	detail := "blocked by content filters"
	resp, _ := json.Marshal(map[string]string{"error": detail})
	mock := &bedrock.MockInvoker{Response: resp}
	g := newTestGateway(mock, &fakeAdmitter{}, nil, nil)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type: models.TaskTextToImage,
		Text: "x",
	}, models.ImageGenerationConfig{})
	var ge *models.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Generation error: "+detail, err.Error())
}

func TestGenerateImageUnexpectedResponse(t *testing.T) {
	mock := &bedrock.MockInvoker{Response: []byte(`{"something":"else"}`)}
	g := newTestGateway(mock, &fakeAdmitter{}, nil, nil)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type: models.TaskTextToImage,
		Text: "x",
	}, models.ImageGenerationConfig{})
	var ge *models.GenerationError
	require.ErrorAs(t, err, &ge)
}

func TestGenerateImageTransientError(t *testing.T) {
	cause := errors.New("connection reset")
	mock := &bedrock.MockInvoker{Err: &models.TransientServiceError{Err: cause}}
	audit := &fakeAudit{}
	g := newTestGateway(mock, &fakeAdmitter{}, audit, nil)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type: models.TaskTextToImage,
		Text: "x",
	}, models.ImageGenerationConfig{})
	var te *models.TransientServiceError
	require.ErrorAs(t, err, &te)
	// 失败也要留审计（无图）
	require.Len(t, audit.bodies, 1)
	assert.Nil(t, audit.images[0])
}

func TestGenerateImageDefaultsConditioningParams(t *testing.T) {
	mock := &bedrock.MockInvoker{Response: imageResponse(t, testPNG(t, 320, 320))}
	g := newTestGateway(mock, &fakeAdmitter{}, nil, nil)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type:  models.TaskImageConditioning,
		Text:  "a castle",
		Image: testPNG(t, 320, 320),
	}, models.ImageGenerationConfig{})
	require.NoError(t, err)

	body := string(mock.Bodies[0])
	assert.Contains(t, body, `"controlMode":"CANNY_EDGE"`)
	assert.Contains(t, body, `"controlStrength":0.7`)
}

func TestGenerateImageDefaultsVariationSimilarity(t *testing.T) {
	mock := &bedrock.MockInvoker{Response: imageResponse(t, testPNG(t, 320, 320))}
	g := newTestGateway(mock, &fakeAdmitter{}, nil, nil)

	_, err := g.GenerateImage(context.Background(), models.GenerationTask{
		Type:   models.TaskImageVariation,
		Text:   "variations",
		Images: [][]byte{testPNG(t, 320, 320)},
	}, models.ImageGenerationConfig{})
	require.NoError(t, err)
	assert.Contains(t, string(mock.Bodies[0]), `"similarityStrength":0.5`)
}

// --- GeneratePrompt -----------------------------------------------------

func writeSeeds(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeds.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func textResponse(t *testing.T, text string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"output": map[string]any{
			"message": map[string]any{
				"content": []map[string]string{{"text": text}},
			},
		},
	})
	require.NoError(t, err)
	return b
}

func TestGeneratePrompt(t *testing.T) {
	mock := &bedrock.MockInvoker{Response: textResponse(t, "an expanded prompt")}
	ledger := &fakeAdmitter{}
	g := NewGateway(mock, "image-model", "prompt-model", ledger, nil, nil,
		writeSeeds(t, `{"seeds":["a lighthouse"]}`))
	g.DisableAuditIndex()

	got, err := g.GeneratePrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "an expanded prompt", got)

	assert.Equal(t, []string{"prompt-model"}, mock.ModelIDs)
	assert.Contains(t, string(mock.Bodies[0]), "a lighthouse")
	// 提示词生成不占配额
	assert.Equal(t, 0, ledger.calls)
}

func TestGeneratePromptBadSeeds(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{`},
		{"missing seeds key", `{"other":[]}`},
		{"empty seeds list", `{"seeds":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &bedrock.MockInvoker{}
			g := NewGateway(mock, "image-model", "prompt-model", &fakeAdmitter{}, nil, nil,
				writeSeeds(t, tt.content))
			g.DisableAuditIndex()

			_, err := g.GeneratePrompt(context.Background())
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, 0, mock.CallCount())
		})
	}
}
