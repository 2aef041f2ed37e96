package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so that both "15m" and integer nanoseconds are accepted.
// Only fields present with a non-zero value override the current Config.
type JsonConfig struct {
	HTTPAddr       string `json:"http_addr"`
	GRPCHealthAddr string `json:"grpc_health_addr"`
	LogLevel       string `json:"log_level"`

	DatabaseDSN   string `json:"database_dsn"`
	RunMigrations *bool  `json:"run_migrations"`
	RedisURL      string `json:"redis_url"`

	AMQPURL   string `json:"amqp_url"`
	AMQPQueue string `json:"amqp_queue"`

	JWTSecret           string         `json:"jwt_secret"`
	JWTIssuer           string         `json:"jwt_issuer"`
	JWTAudience         string         `json:"jwt_audience"`
	AccessTokenTTL      timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL     timex.Duration `json:"refresh_token_ttl"`
	ConfirmationCodeTTL timex.Duration `json:"confirmation_code_ttl"`

	PasswordHashKey       string `json:"password_hash_key"`
	PasswordHashAlgorithm string `json:"password_hash_algorithm"`

	SMTPSenderName  string `json:"smtp_sender_name"`
	SMTPSenderEmail string `json:"smtp_sender_email"`
	SMTPHost        string `json:"smtp_host"`
	SMTPPort        int    `json:"smtp_port"`
	SMTPPassword    string `json:"smtp_password"`

	S3AccessKey         string         `json:"s3_access_key"`
	S3SecretKey         string         `json:"s3_secret_key"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3Endpoint          string         `json:"s3_endpoint"`
	ImageURLTTL         timex.Duration `json:"image_url_ttl"`
	ProfileImageBaseURL string         `json:"profile_image_base_url"`

	EntityCacheSliding  timex.Duration `json:"cache_entity_sliding"`
	EntityCacheAbsolute timex.Duration `json:"cache_entity_absolute"`
	ListCacheSliding    timex.Duration `json:"cache_list_sliding"`
	ListCacheAbsolute   timex.Duration `json:"cache_list_absolute"`
	TotalCacheSliding   timex.Duration `json:"cache_total_sliding"`
	TotalCacheAbsolute  timex.Duration `json:"cache_total_absolute"`
}

// parseJson overlays values from the file named by -c/-config in args.
// Without such a flag it does nothing.
func parseJson(config *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	if c.RunMigrations != nil {
		config.RunMigrations = *c.RunMigrations
	}
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AMQPQueue, c.AMQPQueue)

	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setString(&config.JWTAudience, c.JWTAudience)
	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setDuration(&config.RefreshTokenTTL, c.RefreshTokenTTL)
	setDuration(&config.ConfirmationCodeTTL, c.ConfirmationCodeTTL)

	setString(&config.PasswordHashKey, c.PasswordHashKey)
	setString(&config.PasswordHashAlgorithm, c.PasswordHashAlgorithm)

	setString(&config.SMTPSenderName, c.SMTPSenderName)
	setString(&config.SMTPSenderEmail, c.SMTPSenderEmail)
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPPassword, c.SMTPPassword)

	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3Endpoint, c.S3Endpoint)
	setDuration(&config.ImageURLTTL, c.ImageURLTTL)
	setString(&config.ProfileImageBaseURL, c.ProfileImageBaseURL)

	setDuration(&config.EntityCacheSliding, c.EntityCacheSliding)
	setDuration(&config.EntityCacheAbsolute, c.EntityCacheAbsolute)
	setDuration(&config.ListCacheSliding, c.ListCacheSliding)
	setDuration(&config.ListCacheAbsolute, c.ListCacheAbsolute)
	setDuration(&config.TotalCacheSliding, c.TotalCacheSliding)
	setDuration(&config.TotalCacheAbsolute, c.TotalCacheAbsolute)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = time.Duration(v.Duration)
	}
}
