package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_ENCRYPTION_KEY", "")
	t.Setenv("APP_ENV", "")
	for _, key := range []string{"RETENTION_MAX_AGE_DAYS", "RETENTION_INTERVAL", "STORE_DRIVER", "MAX_UPLOAD_BYTES", "ALLOWED_IMAGE_TYPES", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUST_PROXY_HEADERS"} {
		t.Setenv(key, "")
	}
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 730, cfg.RetentionMaxAgeDays)
	assert.Equal(t, 730*24*time.Hour, cfg.RetentionMaxAge())
	assert.False(t, cfg.IsProduction())
	assert.Contains(t, cfg.AllowedImageTypes, "image/png")
	assert.Zero(t, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.False(t, cfg.TrustProxyHeaders)
}

func TestLoadMinioRequiresEncryptionKey(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("STORAGE_ENDPOINT", "https://minio:9000")
	t.Setenv("STORAGE_ENCRYPTION_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_ENCRYPTION_KEY")

	t.Setenv("STORAGE_ENCRYPTION_KEY", strings.Repeat("k", 32))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMinio, cfg.StorageDriver)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("RETENTION_ENABLED", "true")
	t.Setenv("RETENTION_MAX_AGE_DAYS", "30")
	t.Setenv("RETENTION_INTERVAL", "15m")
	t.Setenv("ALLOWED_IMAGE_TYPES", " image/png , image/gif ,")
	t.Setenv("STORAGE_ENCRYPTION_KEY", strings.Repeat("x", 32))
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("STORAGE_REGION", "eu-central-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.True(t, cfg.RetentionEnabled)
	assert.Equal(t, 30, cfg.RetentionMaxAgeDays)
	assert.Equal(t, 15*time.Minute, cfg.RetentionInterval)
	assert.Equal(t, []string{"image/png", "image/gif"}, cfg.AllowedImageTypes)
	assert.Len(t, cfg.StorageEncryptionKey, 32)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 4, cfg.RateLimitBurst)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, "eu-central-1", cfg.StorageRegion)
}

func TestLoadRejectsBadEncryptionKey(t *testing.T) {
	t.Setenv("STORAGE_ENCRYPTION_KEY", "too-short")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		StoreDriver:          DriverPostgres,
		StorageDriver:        DriverMinio,
		StorageEndpoint:      "minio:9000",
		StorageUseSSL:        true,
		StorageEncryptionKey: []byte(strings.Repeat("k", 32)),
		RetentionInterval:    time.Hour,
		RetentionMaxAgeDays:  730,
		MaxUploadBytes:       1,
		AllowedImageTypes:    []string{"image/png"},
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.StoreDriver = "sqlite"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.RetentionEnabled = true
	bad.RetentionMaxAgeDays = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.RateLimitRPS = 1
	bad.RateLimitBurst = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.StorageEncryptionKey = nil
	assert.Error(t, bad.Validate(), "minio requires an encryption key outside production too")

	bad = valid
	bad.StorageUseSSL = false
	assert.Error(t, bad.Validate(), "SSE-C over plain http")

	bad = valid
	bad.StorageUseSSL = false
	bad.StorageEndpoint = "http://minio:9000"
	assert.Error(t, bad.Validate(), "explicit http scheme")

	ok := valid
	ok.StorageUseSSL = false
	ok.StorageEndpoint = "https://minio:9000"
	assert.NoError(t, ok.Validate(), "https scheme implies TLS")

	ok = valid
	ok.StorageDriver = DriverMemory
	ok.StorageEncryptionKey = nil
	ok.StorageUseSSL = false
	assert.NoError(t, ok.Validate(), "memory storage needs no key")
}
