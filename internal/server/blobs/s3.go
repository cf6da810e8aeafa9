// Package blobs hands out presigned S3 URLs for encrypted vault export
// blobs. Exports are ciphertext before they leave the process, so the
// object store never holds anything readable.
package blobs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Settings carries the object-store connection parameters. A zero
// PresignTTL selects 15 minutes.
type Settings struct {
	Region       string
	BaseEndpoint string
	Bucket       string
	RootUser     string
	RootPassword string
	PresignTTL   time.Duration
}

// Store presigns upload and download URLs against one bucket.
type Store struct {
	settings Settings
}

func NewStore(settings Settings) *Store {
	if settings.PresignTTL <= 0 {
		settings.PresignTTL = 15 * time.Minute
	}
	return &Store{settings: settings}
}

// exportKey places blobs under a per-user date prefix.
func exportKey(userID string) string {
	d := time.Now()
	return fmt.Sprintf("exports/%s/%d/%d/%d/%v", userID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *Store) presignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.settings.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.settings.RootUser,
			s.settings.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.settings.BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// PresignedPutURL allocates a fresh storage key for the user's export blob
// and returns the key together with the presigned upload URL.
func (s *Store) PresignedPutURL(ctx context.Context, userID string) (string, string, error) {
	presignClient, err := s.presignClient()
	if err != nil {
		return "", "", err
	}

	bucket := s.settings.Bucket
	key := exportKey(userID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.settings.PresignTTL))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// PresignedGetURL returns a presigned download URL for an existing blob.
func (s *Store) PresignedGetURL(ctx context.Context, key string) (string, error) {
	presignClient, err := s.presignClient()
	if err != nil {
		return "", err
	}

	bucket := s.settings.Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.settings.PresignTTL))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
