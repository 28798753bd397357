package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override configuration values.
const (
	EnvPort         = "SITEPIPE_PORT"
	EnvParallel     = "SITEPIPE_PARALLEL"
	EnvDeployRemote = "SITEPIPE_DEPLOY_REMOTE"
	EnvS3Endpoint   = "SITEPIPE_S3_ENDPOINT"
	EnvS3Bucket     = "SITEPIPE_S3_BUCKET"
	EnvS3AccessKey  = "SITEPIPE_S3_ACCESS_KEY"
	EnvS3SecretKey  = "SITEPIPE_S3_SECRET_KEY"
	EnvS3Region     = "SITEPIPE_S3_REGION"
	EnvS3UseSSL     = "SITEPIPE_S3_USE_SSL"
)

// DotEnvFileName is loaded from the project root before the configuration.
const DotEnvFileName = ".env"

// LoadDotEnv loads root/.env into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(root string) error {
	path := filepath.Join(root, DotEnvFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", DotEnvFileName, err)
	}
	return nil
}

// ApplyEnv overrides configuration values from SITEPIPE_* environment variables.
// Malformed numeric or boolean values are ignored.
func ApplyEnv(cfg *Config) {
	if v := envValue(EnvPort); v != "" {
		if port, err := strconv.Atoi(strings.TrimPrefix(v, ":")); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := envValue(EnvDeployRemote); v != "" {
		cfg.Deploy.Remote = v
	}

	s3 := cfg.Deploy.S3
	s3.Endpoint = firstNonEmpty(envValue(EnvS3Endpoint), s3.Endpoint)
	s3.Bucket = firstNonEmpty(envValue(EnvS3Bucket), s3.Bucket)
	s3.Region = firstNonEmpty(envValue(EnvS3Region), s3.Region)
	s3.AccessKey = firstNonEmpty(envValue(EnvS3AccessKey), s3.AccessKey)
	s3.SecretKey = firstNonEmpty(envValue(EnvS3SecretKey), s3.SecretKey)
	if v := envValue(EnvS3UseSSL); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s3.UseSSL = &b
		}
	}
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
