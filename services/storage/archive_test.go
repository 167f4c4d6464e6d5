package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketinbox/config"
)

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) Upload(ctx context.Context, uploadContainer s3manager.UploadInput) error {
	args := m.Called(ctx, uploadContainer)
	return args.Error(0)
}

func TestObjectArchive_Store(t *testing.T) {
	client := new(mockS3Client)
	archive := NewObjectArchive(client, "tickets-raw", "/ticket-inbox/")
	raw := []byte("Message-ID: <m1@example.com>\r\n\r\nhello")

	var uploaded s3manager.UploadInput
	client.On("Upload", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { uploaded = args.Get(1).(s3manager.UploadInput) }).
		Return(nil)

	key, err := archive.Store(context.Background(), "tckt_1", "m1@example.com", raw)
	require.NoError(t, err)

	assert.Equal(t, archive.Key("tckt_1", "m1@example.com"), key)
	assert.Regexp(t, `^ticket-inbox/tckt_1/[0-9a-f]{24}\.eml$`, key)
	assert.Equal(t, "tickets-raw", aws.StringValue(uploaded.Bucket))
	assert.Equal(t, key, aws.StringValue(uploaded.Key))
	assert.Equal(t, "message/rfc822", aws.StringValue(uploaded.ContentType))
	body, err := io.ReadAll(uploaded.Body)
	require.NoError(t, err)
	assert.Equal(t, raw, body)
	client.AssertExpectations(t)
}

func TestObjectArchive_KeyIsStablePerMessage(t *testing.T) {
	archive := NewObjectArchive(new(mockS3Client), "bucket", "")

	assert.Equal(t, archive.Key("tckt_1", "m1@example.com"), archive.Key("tckt_1", "m1@example.com"))
	assert.NotEqual(t, archive.Key("tckt_1", "m1@example.com"), archive.Key("tckt_1", "m2@example.com"))
	assert.Regexp(t, `^tckt_1/`, archive.Key("tckt_1", "m1@example.com"))
}

func TestObjectArchive_StoreError(t *testing.T) {
	client := new(mockS3Client)
	client.On("Upload", mock.Anything, mock.Anything).Return(errors.New("access denied"))

	_, err := NewObjectArchive(client, "bucket", "").Store(context.Background(), "tckt_1", "m1@example.com", []byte("x"))

	assert.ErrorContains(t, err, "access denied")
}

func TestNewArchiveFromConfig(t *testing.T) {
	archive, err := NewArchiveFromConfig(&config.ArchiveConfig{})
	require.NoError(t, err)
	assert.Nil(t, archive)

	_, err = NewArchiveFromConfig(&config.ArchiveConfig{Provider: ProviderS3})
	assert.Error(t, err)

	_, err = NewArchiveFromConfig(&config.ArchiveConfig{Provider: "gcs", Bucket: "b"})
	assert.Error(t, err)

	archive, err = NewArchiveFromConfig(&config.ArchiveConfig{
		Provider:        ProviderR2,
		Bucket:          "b",
		R2AccountID:     "account",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, archive)
}
