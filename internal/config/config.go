package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string         // PROVATTRS_DATABASE_URL (required)
	Location    *time.Location // PROVATTRS_TIMEZONE (default "UTC"), applied to naive dates
	NATSURL     string         // PROVATTRS_NATS_URL (optional, empty = no events)
	Namespace   string         // PROVATTRS_NATS_NAMESPACE (optional subject prefix)

	// Migration settings
	MigrateBatchSize int  // PROVATTRS_MIGRATE_BATCH_SIZE (default 1000)
	MigrateWorkers   int  // PROVATTRS_MIGRATE_WORKERS (default 1)
	Lenient          bool // PROVATTRS_LENIENT (default false)

	// Backup settings
	BackupDir        string // PROVATTRS_BACKUP_DIR (enables local backups when set)
	BackupS3Bucket   string // PROVATTRS_BACKUP_S3_BUCKET (enables S3 when set)
	BackupS3Endpoint string // PROVATTRS_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string // PROVATTRS_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Prefix   string // PROVATTRS_BACKUP_S3_PREFIX (default "provattrs/backup")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("PROVATTRS_DATABASE_URL"),
		NATSURL:          os.Getenv("PROVATTRS_NATS_URL"),
		Namespace:        os.Getenv("PROVATTRS_NATS_NAMESPACE"),
		BackupDir:        os.Getenv("PROVATTRS_BACKUP_DIR"),
		BackupS3Bucket:   os.Getenv("PROVATTRS_BACKUP_S3_BUCKET"),
		BackupS3Endpoint: os.Getenv("PROVATTRS_BACKUP_S3_ENDPOINT"),
		BackupS3Region:   envOrDefault("PROVATTRS_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Prefix:   envOrDefault("PROVATTRS_BACKUP_S3_PREFIX", "provattrs/backup"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PROVATTRS_DATABASE_URL is required")
	}

	loc, err := time.LoadLocation(envOrDefault("PROVATTRS_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("PROVATTRS_TIMEZONE: %w", err)
	}
	c.Location = loc

	if c.MigrateBatchSize, err = positiveInt("PROVATTRS_MIGRATE_BATCH_SIZE", 1000); err != nil {
		return nil, err
	}
	if c.MigrateWorkers, err = positiveInt("PROVATTRS_MIGRATE_WORKERS", 1); err != nil {
		return nil, err
	}

	if v := os.Getenv("PROVATTRS_LENIENT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("PROVATTRS_LENIENT: %w", err)
		}
		c.Lenient = b
	}

	return c, nil
}

func positiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return n, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
