// Package archive publishes tally records to an S3 compatible object store
// such as DigitalOcean Spaces.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/storage"
)

var ErrDisabled = errors.New("archive not enabled")

// Config holds the configuration for S3 uploads.
type Config struct {
	Enabled    bool
	HostBase   string
	Region     string
	AccessKey  string
	SecretKey  string
	Space      string
	Bucket     string
	PublicRead bool
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Enabled:  false,
		HostBase: "ams3.digitaloceanspaces.com",
		Region:   "us-east-1",
		Space:    "evote",
		Bucket:   "tallies",
	}
}

// objectStore is the subset of the s3 client used by the archive.
type objectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Archive uploads tally records as JSON documents.
type Archive struct {
	client objectStore
	config *Config
}

// New creates a new Archive with the provided configuration.
func New(cfg *Config) (*Archive, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	if cfg.Space == "" {
		return nil, fmt.Errorf("s3 space is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	sdkConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.HostBase != "" {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", cfg.HostBase))
		}
		o.UsePathStyle = true
	})
	return newWithClient(cfg, client), nil
}

func newWithClient(cfg *Config, client objectStore) *Archive {
	return &Archive{client: client, config: cfg}
}

// ObjectKey returns the key under which the record of runID is published.
func (a *Archive) ObjectKey(runID string) string {
	if a.config.Bucket == "" {
		return fmt.Sprintf("tally-%s.json", runID)
	}
	return fmt.Sprintf("%s/tally-%s.json", a.config.Bucket, runID)
}

// Publish uploads the record and returns its object key.
func (a *Archive) Publish(ctx context.Context, rec *storage.TallyRecord) (string, error) {
	if rec == nil || rec.ID == "" {
		return "", fmt.Errorf("invalid tally record")
	}
	data, err := storage.EncodeArtifact(rec, storage.ArtifactEncodingJSON)
	if err != nil {
		return "", fmt.Errorf("encode tally record: %w", err)
	}

	key := a.ObjectKey(rec.ID)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Space),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if a.config.PublicRead {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}

	log.Debugw("uploading tally record", "key", key, "space", a.config.Space, "size", len(data))
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, describe(err))
	}
	log.Infow("tally record archived", "runId", rec.ID, "key", key)
	return key, nil
}

// Ping checks that the configured space is reachable with the current
// credentials.
func (a *Archive) Ping(ctx context.Context) error {
	_, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.config.Space),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("s3 connection test failed: %w", describe(err))
	}
	return nil
}

// describe adds the service error code to err when there is one.
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
