package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
	cfg "postqueue/configs"
)

// MediaService stores uploaded media in R2 and returns the public URL the
// publish content blocks reference.
type MediaService struct {
	config cfg.Config
}

func NewMediaService(cfg cfg.Config) *MediaService {
	return &MediaService{config: cfg}
}

func (m *MediaService) r2Client() (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(m.config.R2.AccessKey, m.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", m.config.R2.AccountID))
	}), nil
}

func (m *MediaService) Upload(ctx context.Context, userID int64, fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		err = errors.New("unable to determine file type")
		slog.Info(err.Error())
		return "", err
	}
	if !filetype.IsImage(data) && !filetype.IsVideo(data) {
		err = errors.New("only image and video uploads are allowed")
		slog.Info(err.Error())
		return "", err
	}

	name, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	key := fmt.Sprintf("%d/%s.%s", userID, name, kind.Extension)

	client, err := m.r2Client()
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.MIME.Value),
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s/%s", m.config.R2.AccountID, m.config.R2.BucketName, key), nil
}
