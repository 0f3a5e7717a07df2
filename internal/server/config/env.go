package config

import (
	"os"
	"strconv"
	"time"
)

const envPrefix = "FILEVAULT_"

// parseEnv overlays FILEVAULT_* variables. Malformed numbers panic, like
// malformed flags do.
func parseEnv(config *Config) {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	str("HTTP_ADDR", &config.EndpointAddrHTTP)
	str("GRPC_ADDR", &config.EndpointAddrGRPC)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	str("ENCRYPTION_KEY", &config.EncryptionKey)
	str("CIPHER", &config.Cipher)
	str("STORAGE_BACKEND", &config.StorageBackend)
	str("STORAGE_PATH", &config.StoragePath)
	str("S3_USER", &config.S3RootUser)
	str("S3_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_ENDPOINT", &config.S3BaseEndpoint)

	if v, ok := os.LookupEnv(envPrefix + "MAX_UPLOAD_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(err)
		}
		config.MaxUploadSize = n
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_FAILED_LOGINS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.MaxFailedLogins = n
	}
	if v, ok := os.LookupEnv(envPrefix + "PUBLIC_CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		config.PublicCacheTTL = d
	}
}
