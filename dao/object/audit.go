package object

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AuditStore S3 审计对象存储。每次请求写两个对象：
// responses/{timestamp}_response.json（请求体）与
// images/{timestamp}_image.png（输出图像，可能缺省）。
// 对象一经写入不再修改。
type AuditStore struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

func NewAuditStore(ctx context.Context, accessKey, secretKey, region, bucket string) (*AuditStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, err
	}
	return &AuditStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		now:    time.Now,
	}, nil
}

// Store 落盘一次请求的审计对象，返回写入的键名。
// image 为空时只写请求体对象。
func (a *AuditStore) Store(ctx context.Context, body []byte, image []byte) (responseKey, imageKey string, err error) {
	ts := a.now().Format("20060102_150405")

	responseKey = fmt.Sprintf("responses/%s_response.json", ts)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(responseKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", "", err
	}

	if len(image) > 0 {
		imageKey = fmt.Sprintf("images/%s_image.png", ts)
		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(imageKey),
			Body:        bytes.NewReader(image),
			ContentType: aws.String("image/png"),
		})
		if err != nil {
			return responseKey, "", err
		}
	}
	return responseKey, imageKey, nil
}
