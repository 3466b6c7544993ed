package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Uploader struct {
	client     *s3.Client
	bucket     string
	prefix     string
	region     string
	makePublic bool
}

func NewS3Uploader(ctx context.Context, bucket, prefix, region string, makePublic bool) (*S3Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("缺少 S3 bucket")
	}
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}
	return &S3Uploader{
		client:     s3.NewFromConfig(awsCfg),
		bucket:     bucket,
		prefix:     prefix,
		region:     awsCfg.Region,
		makePublic: makePublic,
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, localPath, videoID string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("打开视频失败: %w", err)
	}
	defer f.Close()

	key := ObjectKey(u.prefix, videoID)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	}
	if u.makePublic {
		in.ACL = s3types.ObjectCannedACLPublicRead
	}
	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("上传 S3 失败: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key), nil
}
