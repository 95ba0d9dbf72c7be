package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitget/internal/utils"
)

type Options struct {
	Profile  string
	Region   string
	Endpoint string // custom endpoint for S3-compatible stores; implies path-style
	// Static credentials take precedence over the profile chain when both are set.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Source serves byte ranges of an object addressed as s3://bucket/key.
type S3Source struct {
	client *s3.Client
}

func NewS3Source(ctx context.Context, opts Options) (*S3Source, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{client: client}, nil
}

func (s *S3Source) Probe(ctx context.Context, rawURL string) (*utils.TargetInfo, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, &utils.ProbeError{URL: rawURL, Err: err}
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &utils.ProbeError{URL: rawURL, Err: err}
	}
	size := aws.ToInt64(head.ContentLength)
	if size <= 0 {
		return nil, &utils.ProbeError{URL: rawURL, Err: utils.ErrMissingContentLength}
	}
	if aws.ToString(head.AcceptRanges) != "bytes" {
		return nil, &utils.ProbeError{URL: rawURL, Err: utils.ErrRangeRequestsNotSupported}
	}
	parts := strings.Split(key, "/")
	log.Debug().Str("op", "s3/probe").Msgf("object s3://%s/%s has %d bytes", bucket, key, size)
	return &utils.TargetInfo{
		FinalURL:      "s3://" + bucket + "/" + key,
		FileName:      parts[len(parts)-1],
		ContentLength: size,
	}, nil
}

func (s *S3Source) FetchRange(ctx context.Context, target string, low, high int64) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(target)
	if err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", low, high)),
	})
	if err != nil {
		return nil, fmt.Errorf("error getting object: %w", err)
	}
	if aws.ToString(result.ContentRange) == "" {
		result.Body.Close()
		return nil, utils.ErrRangeRequestsNotSupported
	}
	return result.Body, nil
}

// ParseS3URL splits s3://bucket/key. The key must name an object, not a prefix.
func ParseS3URL(url string) (string, string, error) {
	if !strings.HasPrefix(url, "s3://") {
		return "", "", fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, url)
	}
	url = strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(url, "/", 2)
	if parts[0] == "" {
		return "", "", errors.New("invalid S3 URL format")
	}
	if len(parts) < 2 || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", utils.ErrNoFileName
	}
	return parts[0], parts[1], nil
}
