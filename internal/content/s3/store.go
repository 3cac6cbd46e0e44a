package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/ezac101/chainmail/internal/content"
)

// Config S3 内容存储配置（兼容 MinIO）。
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	MaxSize   int64
}

// Store S3 内容存储实现。
//
// 对象键为内容标识本身，同一内容重复上传幂等覆盖同一对象。
type Store struct {
	client  *awss3.Client
	bucket  string
	maxSize int64
}

// NewStore 创建 S3 内容存储实例。
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // MinIO 需要路径风格寻址
	})

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		maxSize: cfg.MaxSize,
	}, nil
}

// Put 上传内容，返回内容标识。
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", content.ErrEmptyContent
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", content.ErrContentTooLarge
	}

	id := content.ContentID(data)
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}
	return id, nil
}

// Get 按标识下载内容。
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	if err := content.ValidateContentID(id); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, content.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content body: %w", err)
	}
	return data, nil
}

// Has 判断对象是否存在。
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	if err := content.ValidateContentID(id); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Health 检查桶可访问。
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

// objectKey 计算对象键，按标识前缀分片。
func objectKey(id string) string {
	return fmt.Sprintf("content/%s/%s", id[0:2], id)
}

// isNotFound 判断 S3 错误是否表示对象不存在。
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
