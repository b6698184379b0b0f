// Package publisher uploads rendered feeds to S3 compatible object storage
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foerderbande/feeds"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultRegion = "auto"
	ContentType   = feeds.RSSContentType
	cacheControl  = "public, max-age=300"
)

// Options configures the object storage connection
type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// ObjectAPI is the subset of the S3 client used for publishing
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Client struct {
	api    ObjectAPI
	bucket string
}

// NewClient creates a client for AWS S3 or, with an endpoint, any S3 compatible store (R2, MinIO)
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, errors.New("no bucket configured")
	}
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return NewFromAPI(api, opts.Bucket), nil
}

func NewFromAPI(api ObjectAPI, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

// PutFeed uploads a rendered RSS document under key
func (c *Client) PutFeed(ctx context.Context, key string, body string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         strings.NewReader(body),
		ContentType:  aws.String(ContentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	log.WithFields(log.Fields{
		"bucket": c.bucket,
		"key":    key,
		"bytes":  len(body),
	}).Info("Published feed")

	return nil
}

// DeleteFeed removes a published feed. Deleting a missing key is not an error.
func (c *Client) DeleteFeed(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	log.WithFields(log.Fields{
		"bucket": c.bucket,
		"key":    key,
	}).Info("Unpublished feed")

	return nil
}
