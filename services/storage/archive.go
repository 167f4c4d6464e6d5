package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketinbox/config"
	"github.com/customeros/ticketinbox/internal/tracing"
	"github.com/customeros/ticketinbox/services/storage/aws_client"
)

const (
	ProviderS3 = "s3"
	ProviderR2 = "r2"

	contentTypeRFC822 = "message/rfc822"
)

// ObjectArchive stores raw messages in an S3 compatible bucket under
// <prefix>/<ticketID>/<hash of the message id>.eml.
type ObjectArchive struct {
	client aws_client.S3Client
	bucket string
	prefix string
}

func NewObjectArchive(client aws_client.S3Client, bucket, prefix string) *ObjectArchive {
	return &ObjectArchive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// NewArchiveFromConfig returns nil when archiving is disabled.
func NewArchiveFromConfig(cfg *config.ArchiveConfig) (*ObjectArchive, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is not configured")
	}

	var client aws_client.S3Client
	var err error
	switch strings.ToLower(cfg.Provider) {
	case ProviderS3:
		client, err = aws_client.NewAWSClient(cfg.Region, cfg.AccessKeyID, cfg.AccessKeySecret)
	case ProviderR2:
		client, err = aws_client.NewR2Client(cfg.R2AccountID, cfg.AccessKeyID, cfg.AccessKeySecret)
	default:
		return nil, errors.Errorf("unsupported archive provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create archive client")
	}
	return NewObjectArchive(client, cfg.Bucket, cfg.Prefix), nil
}

// Key is deterministic, so re-archiving a message overwrites the same object.
func (a *ObjectArchive) Key(ticketID, externalID string) string {
	sum := sha256.Sum256([]byte(externalID))
	key := ticketID + "/" + hex.EncodeToString(sum[:12]) + ".eml"
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

func (a *ObjectArchive) Store(ctx context.Context, ticketID, externalID string, raw []byte) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectArchive.Store")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, ticketID)

	key := a.Key(ticketID, externalID)
	span.SetTag("key", key)

	err := a.client.Upload(ctx, s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String(contentTypeRFC822),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrapf(err, "failed to archive message %s", externalID)
	}
	return key, nil
}
