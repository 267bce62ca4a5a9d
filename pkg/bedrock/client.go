package bedrock

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/HatmanStack/canvas-demo/models"
)

// Invoker 远端模型调用的最小接口，测试用 mock 替换
type Invoker interface {
	InvokeModel(ctx context.Context, modelID string, body []byte) ([]byte, error)
}

// Client Bedrock Runtime 客户端，每次调用受固定超时约束（默认 300s）
type Client struct {
	rt      *bedrockruntime.Client
	timeout time.Duration
}

func NewClient(ctx context.Context, accessKey, secretKey, region string, timeout time.Duration) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, err
	}
	return &Client{
		rt:      bedrockruntime.NewFromConfig(cfg),
		timeout: timeout,
	}, nil
}

// InvokeModel 调用指定模型并返回原始响应体。
// 网络/客户端层错误统一包装为 TransientServiceError，超时后调用失败。
func (c *Client) InvokeModel(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rt.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, &models.TransientServiceError{Err: err}
	}
	return out.Body, nil
}
