package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// TLS is served directly when both files are set
	TLSCertFile string
	TLSKeyFile  string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis backs the room store when ShareStoreBackend is "redis"
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Share rooms
	ShareStoreBackend     string
	ShareFileTTLSeconds   int
	ShareIdleGraceMinutes int
	ShareRoomTTLMinutes   int
	ShareSweepIntervalSec int
	ShareRedisPrefix      string
	ShareMaxUploadMB      int
	ShareOutboxSize       int
	// Blob storage
	BlobProvider        string
	BlobFolder          string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	S3Endpoint          string
	S3Region            string
	S3Bucket            string
	S3AccessKeyID       string
	S3SecretAccessKey   string
	S3PublicBaseURL     string
	S3UsePathStyle      bool
	// Admin endpoints are disabled while the hash is empty
	AdminSecretHash string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> .env -> environment variable overrides
	// 1) Try to load JSON config (supports both flat and nested grouped keys)
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}

	// 2) Fill defaults for any zero values
	applyDefaults(&cfg)

	// 3) .env never overrides variables already present in the environment
	_ = godotenv.Load()

	// 4) Override from environment variables when set
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Validate rejects combinations the server cannot start with.
func (c AppConfig) Validate() error {
	switch c.ShareStoreBackend {
	case "memory", "redis":
	default:
		return errors.New("SHARE_STORE_BACKEND must be memory or redis")
	}
	switch c.BlobProvider {
	case "none":
	case "cloudinary":
		if c.CloudinaryCloudName == "" || c.CloudinaryAPIKey == "" || c.CloudinaryAPISecret == "" {
			return errors.New("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET must be set in environment variables")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			return errors.New("S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set in environment variables")
		}
	default:
		return errors.New("BLOB_PROVIDER must be none, cloudinary or s3")
	}
	return nil
}

// FileTTL is how long an announced file stays visible.
func (c AppConfig) FileTTL() time.Duration {
	return time.Duration(c.ShareFileTTLSeconds) * time.Second
}

// IdleGrace is how long an empty in-memory room survives.
func (c AppConfig) IdleGrace() time.Duration {
	return time.Duration(c.ShareIdleGraceMinutes) * time.Minute
}

// RoomTTL is the sliding expiry of a redis room key.
func (c AppConfig) RoomTTL() time.Duration {
	return time.Duration(c.ShareRoomTTLMinutes) * time.Minute
}

// SweepInterval is the period of the in-memory sweeper.
func (c AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.ShareSweepIntervalSec) * time.Second
}

// MaxUploadSize is the per-file cap in bytes.
func (c AppConfig) MaxUploadSize() int64 {
	return int64(c.ShareMaxUploadMB) << 20
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	// Helper to read string/int/bool safely
	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case json.Number:
				i, _ := t.Int64()
				return int(i)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		out.TLSCertFile = getString(app, "TLSCertFile")
		out.TLSKeyFile = getString(app, "TLSKeyFile")
	}

	// gin section (backward compatibility)
	if g, ok := raw["gin"].(map[string]any); ok {
		if v := getString(g, "Mode"); v != "" {
			out.GinMode = v
		}
		if v := getString(g, "LogPath"); v != "" {
			out.GinPath = v
		}
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v := getString(lg, "Level"); v != "" {
			out.LogLevel = v
		}
		if v := getString(lg, "Path"); v != "" {
			out.LogPath = v
		}
		if v := getString(lg, "GinMode"); v != "" {
			out.GinMode = v
		}
		if v := getString(lg, "GinPath"); v != "" {
			out.GinPath = v
		}
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "Compress")
	}

	if sh, ok := raw["share"].(map[string]any); ok {
		if v := getString(sh, "StoreBackend"); v != "" {
			out.ShareStoreBackend = v
		}
		if v := getInt(sh, "FileTTLSeconds"); v != 0 {
			out.ShareFileTTLSeconds = v
		}
		if v := getInt(sh, "IdleGraceMinutes"); v != 0 {
			out.ShareIdleGraceMinutes = v
		}
		if v := getInt(sh, "RoomTTLMinutes"); v != 0 {
			out.ShareRoomTTLMinutes = v
		}
		if v := getInt(sh, "SweepIntervalSec"); v != 0 {
			out.ShareSweepIntervalSec = v
		}
		if v := getString(sh, "RedisPrefix"); v != "" {
			out.ShareRedisPrefix = v
		}
		if v := getInt(sh, "MaxUploadMB"); v != 0 {
			out.ShareMaxUploadMB = v
		}
		if v := getInt(sh, "OutboxSize"); v != 0 {
			out.ShareOutboxSize = v
		}
	}

	if bl, ok := raw["blob"].(map[string]any); ok {
		if v := getString(bl, "Provider"); v != "" {
			out.BlobProvider = v
		}
		if v := getString(bl, "Folder"); v != "" {
			out.BlobFolder = v
		}
		if cl, ok := bl["cloudinary"].(map[string]any); ok {
			out.CloudinaryCloudName = getString(cl, "CloudName")
			out.CloudinaryAPIKey = getString(cl, "APIKey")
			out.CloudinaryAPISecret = getString(cl, "APISecret")
		}
		if s3, ok := bl["s3"].(map[string]any); ok {
			out.S3Endpoint = getString(s3, "Endpoint")
			out.S3Region = getString(s3, "Region")
			out.S3Bucket = getString(s3, "Bucket")
			out.S3AccessKeyID = getString(s3, "AccessKeyID")
			out.S3SecretAccessKey = getString(s3, "SecretAccessKey")
			out.S3PublicBaseURL = getString(s3, "PublicBaseURL")
			out.S3UsePathStyle = getBool(s3, "UsePathStyle")
		}
	}

	if adm, ok := raw["admin"].(map[string]any); ok {
		out.AdminSecretHash = getString(adm, "SecretHash")
	}

	// Also support reading flat keys directly for backward compatibility
	if v, ok := raw["AppPort"]; ok && out.AppPort == "" {
		out.AppPort, _ = v.(string)
	}
	if v, ok := raw["GinMode"]; ok && out.GinMode == "" {
		out.GinMode, _ = v.(string)
	}
	if v, ok := raw["LogLevel"]; ok && out.LogLevel == "" {
		out.LogLevel, _ = v.(string)
	}
	if v, ok := raw["RedisHost"]; ok && out.RedisHost == "" {
		out.RedisHost, _ = v.(string)
	}
	if v, ok := raw["RedisPort"]; ok && out.RedisPort == 0 {
		if f, ok := v.(float64); ok {
			out.RedisPort = int(f)
		}
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.ShareStoreBackend == "" {
		c.ShareStoreBackend = "memory"
	}
	if c.ShareFileTTLSeconds == 0 {
		c.ShareFileTTLSeconds = 180
	}
	if c.ShareIdleGraceMinutes == 0 {
		c.ShareIdleGraceMinutes = 30
	}
	if c.ShareRoomTTLMinutes == 0 {
		c.ShareRoomTTLMinutes = 30
	}
	if c.ShareSweepIntervalSec == 0 {
		c.ShareSweepIntervalSec = 10
	}
	if c.ShareRedisPrefix == "" {
		c.ShareRedisPrefix = "share:room:"
	}
	if c.ShareMaxUploadMB == 0 {
		c.ShareMaxUploadMB = 1024
	}
	if c.ShareOutboxSize == 0 {
		c.ShareOutboxSize = 64
	}
	if c.BlobProvider == "" {
		c.BlobProvider = "none"
	}
	if c.BlobFolder == "" {
		c.BlobFolder = "temp_shares"
	}
	if c.S3Region == "" {
		c.S3Region = "auto"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("TLS_CERT_FILE", ""); v != "" {
		c.TLSCertFile = v
	}
	if v := getEnv("TLS_KEY_FILE", ""); v != "" {
		c.TLSKeyFile = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_LOG_PATH", ""); v != "" { // compatibility
		c.GinPath = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	// Logging env overrides
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	// Share env overrides
	if v := getEnv("SHARE_STORE_BACKEND", ""); v != "" {
		c.ShareStoreBackend = strings.ToLower(v)
	}
	if v := getEnv("SHARE_FILE_TTL_SECONDS", ""); v != "" {
		c.ShareFileTTLSeconds = mustParseInt(v)
	}
	if v := getEnv("SHARE_IDLE_GRACE_MINUTES", ""); v != "" {
		c.ShareIdleGraceMinutes = mustParseInt(v)
	}
	if v := getEnv("SHARE_ROOM_TTL_MINUTES", ""); v != "" {
		c.ShareRoomTTLMinutes = mustParseInt(v)
	}
	if v := getEnv("SHARE_SWEEP_INTERVAL_SEC", ""); v != "" {
		c.ShareSweepIntervalSec = mustParseInt(v)
	}
	if v := getEnv("SHARE_REDIS_PREFIX", ""); v != "" {
		c.ShareRedisPrefix = v
	}
	if v := getEnv("SHARE_MAX_UPLOAD_MB", ""); v != "" {
		c.ShareMaxUploadMB = mustParseInt(v)
	}
	if v := getEnv("SHARE_OUTBOX_SIZE", ""); v != "" {
		c.ShareOutboxSize = mustParseInt(v)
	}
	// Blob env overrides
	if v := getEnv("BLOB_PROVIDER", ""); v != "" {
		c.BlobProvider = strings.ToLower(v)
	}
	if v := getEnv("BLOB_FOLDER", ""); v != "" {
		c.BlobFolder = v
	}
	if v := getEnv("CLOUDINARY_CLOUD_NAME", ""); v != "" {
		c.CloudinaryCloudName = v
	}
	if v := getEnv("CLOUDINARY_API_KEY", ""); v != "" {
		c.CloudinaryAPIKey = v
	}
	if v := getEnv("CLOUDINARY_API_SECRET", ""); v != "" {
		c.CloudinaryAPISecret = v
	}
	if v := getEnv("S3_ENDPOINT", ""); v != "" {
		c.S3Endpoint = v
	}
	if v := getEnv("S3_REGION", ""); v != "" {
		c.S3Region = v
	}
	if v := getEnv("S3_BUCKET", ""); v != "" {
		c.S3Bucket = v
	}
	if v := getEnv("S3_ACCESS_KEY_ID", ""); v != "" {
		c.S3AccessKeyID = v
	}
	if v := getEnv("S3_SECRET_ACCESS_KEY", ""); v != "" {
		c.S3SecretAccessKey = v
	}
	if v := getEnv("S3_PUBLIC_BASE_URL", ""); v != "" {
		c.S3PublicBaseURL = v
	}
	if v := getEnv("S3_USE_PATH_STYLE", ""); v != "" {
		c.S3UsePathStyle = v == "true"
	}
	if v := getEnv("ADMIN_SECRET_HASH", ""); v != "" {
		c.AdminSecretHash = v
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
