// Package s3 serves s3://bucket/key sources through the ranged fetcher
// interface used by the chunk workers.
package s3

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/downloader"
)

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Fetcher struct {
	client objectGetter
}

// NewFetcher loads the shared AWS config. Empty profile or region fall back
// to the SDK defaults.
func NewFetcher(ctx context.Context, profile, region string) (*Fetcher, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	return &Fetcher{client: s3.NewFromConfig(cfg)}, nil
}

// Fetch maps a ranged read to GetObject. S3 answers ranged reads with a
// Content-Range, which is reported as 206 like an HTTP origin would.
func (f *Fetcher) Fetch(ctx context.Context, req downloader.Request) (*downloader.Response, error) {
	bucket, key, err := ParseURL(req.URL)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rh := req.RangeHeader(); rh != "" {
		input.Range = aws.String(rh)
	}
	out, err := f.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting object: %w", err)
	}
	resp := &downloader.Response{
		StatusCode:    http.StatusOK,
		ContentLength: -1,
		Body:          out.Body,
	}
	if out.ContentLength != nil {
		resp.ContentLength = *out.ContentLength
	}
	if cr := aws.ToString(out.ContentRange); cr != "" {
		resp.StatusCode = http.StatusPartialContent
		resp.ContentRange = cr
	}
	log.Debug().Str("op", "s3/fetcher").Msgf("GetObject s3://%s/%s range=%q status=%d", bucket, key, aws.ToString(input.Range), resp.StatusCode)
	return resp, nil
}

// ParseURL splits s3://bucket/key. Prefixes (keys ending in "/") are not
// downloadable objects.
func ParseURL(url string) (string, string, error) {
	if !strings.HasPrefix(url, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	parts := strings.SplitN(strings.TrimPrefix(url, "s3://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	if len(parts) < 2 || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", fmt.Errorf("S3 URL must name an object: %s", url)
	}
	return parts[0], parts[1], nil
}
