// Package images turns a stored profile-image file name into a URL the
// client can fetch.
package images

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type URLResolver interface {
	URL(ctx context.Context, fileName string) (string, error)
}

// StaticResolver joins the file name onto a public base URL.
type StaticResolver struct {
	base string
}

func NewStaticResolver(base string) *StaticResolver {
	return &StaticResolver{base: strings.TrimRight(base, "/")}
}

func (r *StaticResolver) URL(_ context.Context, fileName string) (string, error) {
	return r.base + "/" + url.PathEscape(fileName), nil
}

// S3Config describes the bucket holding profile images.
type S3Config struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
	Expires   time.Duration
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Resolver hands out time-limited presigned GET URLs.
type S3Resolver struct {
	presigner getPresigner
	bucket    string
	expires   time.Duration
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
	newS3PresignClient    = func(c *s3.Client) *s3.PresignClient { return s3.NewPresignClient(c) }
)

func NewS3Resolver(ctx context.Context, cfg S3Config) (*S3Resolver, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Resolver{
		presigner: newS3PresignClient(client),
		bucket:    cfg.Bucket,
		expires:   cfg.Expires,
	}, nil
}

func (r *S3Resolver) URL(ctx context.Context, fileName string) (string, error) {
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(fileName),
	}, s3.WithPresignExpires(r.expires))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", fileName, err)
	}
	return req.URL, nil
}
