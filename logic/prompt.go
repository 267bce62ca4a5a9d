package logic

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/HatmanStack/canvas-demo/models"
)

// 提示词扩写模板，种子概念来自 seeds.json
const promptTemplate = `
        Generate a creative image prompt that builds upon this concept: "%s"

        Requirements:
        - Create a new, expanded prompt without mentioning or repeating the original concept
        - Focus on vivid visual details and artistic elements
        - Keep the prompt under 1000 characters
        - Do not include any meta-instructions or seed references
        - Return only the new prompt text

        Response Format:
        [Just the new prompt text, nothing else]
        `

type seedFile struct {
	Seeds []string `json:"seeds"`
}

// GeneratePrompt 随机抽取一个种子概念，让文本模型扩写成完整的图像提示词。
// 提示词生成不占用图像配额。
func (g *Gateway) GeneratePrompt(ctx context.Context) (string, error) {
	seed, err := randomSeed(g.seedsPath)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(models.PromptRequest{
		Messages: []models.PromptMessage{
			{
				Role:    "user",
				Content: []models.ContentBlock{{Text: fmt.Sprintf(promptTemplate, seed)}},
			},
		},
	})
	if err != nil {
		return "", err
	}

	raw, err := g.invoker.InvokeModel(ctx, g.promptModelID, body)
	if err != nil {
		return "", err
	}

	_, text, err := decodeModelResponse(raw)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", &models.GenerationError{Detail: "Unexpected response format."}
	}
	return text, nil
}

func randomSeed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &models.ValidationError{Message: "seeds file is unreadable: " + err.Error()}
	}
	var f seedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", &models.ValidationError{Message: "seeds file is malformed: " + err.Error()}
	}
	if len(f.Seeds) == 0 {
		return "", &models.ValidationError{Message: "The JSON file must contain a 'seeds' key with a list of strings."}
	}
	return f.Seeds[rand.Intn(len(f.Seeds))], nil
}
