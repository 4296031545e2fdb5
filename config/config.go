package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Supported values of DB_TYPE
const (
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
	DBTypeMySQL    = "mysql"
	DBTypeMongoDB  = "mongodb"
	DBTypeDynamoDB = "dynamodb"
	DBTypeS3       = "s3"
	DBTypeMemory   = "memory"
)

// DBTypes lists every accepted DB_TYPE
var DBTypes = []string{
	DBTypeSQLite, DBTypePostgres, DBTypeMySQL,
	DBTypeMongoDB, DBTypeDynamoDB, DBTypeS3, DBTypeMemory,
}

// DefaultSQLiteFile is used when DB_TYPE=sqlite and DB_NAME is empty
const DefaultSQLiteFile = "main.db"

// Config holds all configuration for the pasties service
type Config struct {
	// Server
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`

	// Storage
	DBType    string `mapstructure:"db_type"`
	DBHost    string `mapstructure:"db_host"`
	DBPort    int    `mapstructure:"db_port"`
	DBUser    string `mapstructure:"db_user"`
	DBPass    string `mapstructure:"db_pass"`
	DBName    string `mapstructure:"db_name"`
	DBSSLMode string `mapstructure:"db_sslmode"`

	// SQL connection pool
	DBMaxOpenConns    int           `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns    int           `mapstructure:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `mapstructure:"db_conn_max_lifetime"`

	MongoURI         string `mapstructure:"mongo_uri"`
	DynamoDBTable    string `mapstructure:"dynamodb_table"`
	DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
	AWSRegion        string `mapstructure:"aws_region"`
	S3Bucket         string `mapstructure:"s3_bucket"`
	S3Prefix         string `mapstructure:"s3_prefix"`
	S3Endpoint       string `mapstructure:"s3_endpoint"`

	// Cache
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	// Auth
	AuthSecret     string `mapstructure:"auth_secret"`
	PasteOwnership bool   `mapstructure:"paste_ownership"`

	// Pastes
	SlugLength      int           `mapstructure:"slug_length"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// HTTP guards
	RateLimit   float64  `mapstructure:"rate_limit"`
	RateBurst   int      `mapstructure:"rate_burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// TrustedProxies may set X-Forwarded-For; empty trusts nobody
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// Operational
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	LogLevel      string `mapstructure:"log_level"`
	GinMode       string `mapstructure:"gin_mode"`

	// Build info, set by main rather than the environment
	Version    string `mapstructure:"-"`
	BuildTime  string `mapstructure:"-"`
	CommitHash string `mapstructure:"-"`
}

// defaults also registers every key with viper, which AutomaticEnv needs
// for Unmarshal to see environment-only values.
var defaults = map[string]any{
	"port":                 8080,
	"host":                 "",
	"db_type":              DBTypeSQLite,
	"db_host":              "localhost",
	"db_port":              0,
	"db_user":              "",
	"db_pass":              "",
	"db_name":              "",
	"db_sslmode":           "disable",
	"db_max_open_conns":    25,
	"db_max_idle_conns":    5,
	"db_conn_max_lifetime": time.Hour,
	"mongo_uri":            "mongodb://localhost:27017",
	"dynamodb_table":       "pasties",
	"dynamodb_endpoint":    "",
	"aws_region":           "",
	"s3_bucket":            "",
	"s3_prefix":            "pastes",
	"s3_endpoint":          "",
	"redis_addr":           "",
	"redis_password":       "",
	"redis_db":             0,
	"cache_ttl":            5 * time.Minute,
	"auth_secret":          "",
	"paste_ownership":      true,
	"slug_length":          10,
	"max_body_bytes":       int64(1024 * 1024), // 1MB
	"cleanup_interval":     10 * time.Minute,
	"rate_limit":           5.0,
	"rate_burst":           20,
	"cors_origins":         []string{},
	"trusted_proxies":      []string{},
	"enable_metrics":       true,
	"log_level":            "info",
	"gin_mode":             "release",
}

// Load reads configuration from, in increasing precedence: defaults, the
// dotenv file at envFile (skipped when it does not exist), environment
// variables and the flags that were set on the command line. Flag names map
// to keys with dashes turned into underscores, so --db-type sets DB_TYPE.
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", envFile, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; !known {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DBType = strings.ToLower(strings.TrimSpace(cfg.DBType))
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)

	return cfg, nil
}

// splitList flattens comma separated entries, which is how lists arrive
// from dotenv files
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.DBType {
	case DBTypeSQLite, DBTypeMemory:
	case DBTypePostgres, DBTypeMySQL:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("%s requires DB_HOST, DB_USER and DB_NAME", c.DBType)
		}
		if c.DBPort < 0 || c.DBPort > 65535 {
			return fmt.Errorf("invalid database port: %d", c.DBPort)
		}
	case DBTypeMongoDB:
		if c.MongoURI == "" {
			return fmt.Errorf("mongodb requires MONGO_URI")
		}
	case DBTypeDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("dynamodb requires DYNAMODB_TABLE")
		}
	case DBTypeS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (valid: %s)", c.DBType, strings.Join(DBTypes, ", "))
	}

	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 || c.DBConnMaxLifetime < 0 {
		return fmt.Errorf("database pool settings cannot be negative")
	}

	if c.SlugLength < 4 || c.SlugLength > 32 {
		return fmt.Errorf("slug length must be between 4 and 32: %d", c.SlugLength)
	}

	if c.MaxBodyBytes < 1024 || c.MaxBodyBytes > 100*1024*1024 {
		return fmt.Errorf("max body bytes must be between 1KB and 100MB: %d", c.MaxBodyBytes)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative: %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting: %d", c.RateBurst)
	}

	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("invalid trusted proxy: %q", p)
		}
	}

	if c.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval cannot be negative: %v", c.CleanupInterval)
	}

	if err := ValidateGinMode(c.GinMode); err != nil {
		return err
	}

	if c.RedisAddr != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive when REDIS_ADDR is set: %v", c.CacheTTL)
	}

	return nil
}

// ValidateGinMode accepts the modes gin.SetMode knows; gin panics on others
func ValidateGinMode(mode string) error {
	switch mode {
	case "debug", "release", "test":
		return nil
	}
	return fmt.Errorf("invalid gin mode: %q (valid: debug, release, test)", mode)
}

// ListenAddr returns the host:port the HTTP server binds to
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SQLDriver reports whether DB_TYPE selects one of the gorm backed engines
func (c *Config) SQLDriver() bool {
	switch c.DBType {
	case DBTypeSQLite, DBTypePostgres, DBTypeMySQL:
		return true
	}
	return false
}

// DSN builds the connection string for the SQL engines
func (c *Config) DSN() string {
	switch c.DBType {
	case DBTypeSQLite:
		if c.DBName == "" {
			return DefaultSQLiteFile
		}
		return c.DBName
	case DBTypePostgres:
		port := c.DBPort
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.DBHost, port, c.DBUser, c.DBPass, c.DBName, c.DBSSLMode)
	case DBTypeMySQL:
		port := c.DBPort
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.DBUser, c.DBPass, net.JoinHostPort(c.DBHost, strconv.Itoa(port)), c.DBName)
	}
	return ""
}

// MongoDatabase returns the database name used with DB_TYPE=mongodb
func (c *Config) MongoDatabase() string {
	if c.DBName == "" {
		return "pasties"
	}
	return c.DBName
}
