package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/meddev-qms/meddev-qms/internal/config"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(&appconfig.S3ExportArchiveConfig{Region: "eu-west-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestNew_RequiresRegion(t *testing.T) {
	_, err := New(&appconfig.S3ExportArchiveConfig{Bucket: "qms-exports"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
}

func TestNew_MinIOStyleConfig(t *testing.T) {
	b, err := New(&appconfig.S3ExportArchiveConfig{
		Bucket:          "qms-exports",
		Region:          "us-east-1",
		Endpoint:        "http://minio.internal:9000",
		Prefix:          "audit",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "qms-exports", b.bucket)
	assert.Equal(t, "audit", b.prefix)
}
