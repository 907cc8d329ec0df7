package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	MetricsPort int    `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	// URL overrides the individual fields when set.
	URL string `yaml:"url"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir     string `yaml:"models_dir"`
	DetectorModel string `yaml:"detector_model"`
	EmbedderModel string `yaml:"embedder_model"`
	EmbedderInput string `yaml:"embedder_input"`
	// EmbedderOutput is the graph output holding the feature vector.
	EmbedderOutput string `yaml:"embedder_output"`
	EmbeddingDim   int    `yaml:"embedding_dim"`

	DetectionThreshold  float64 `yaml:"detection_threshold"`
	MatchThreshold      float64 `yaml:"match_threshold"`
	EnrollMinConfidence float64 `yaml:"enroll_min_confidence"`
	EnrollMinFaceRatio  float64 `yaml:"enroll_min_face_ratio"`
	EnrollMaxFaceRatio  float64 `yaml:"enroll_max_face_ratio"`
	RecognitionPadding  float64 `yaml:"recognition_padding"`

	Retries      int           `yaml:"retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	DefaultFPS  int `yaml:"default_fps"`
	WorkerCount int `yaml:"worker_count"`
	FrameWidth  int `yaml:"frame_width"`
}

type TrackingConfig struct {
	HistorySize         int           `yaml:"history_size"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	MemoryDuration      time.Duration `yaml:"memory_duration"`
	RecognitionInterval int           `yaml:"recognition_interval"`
	GalleryRefresh      time.Duration `yaml:"gallery_refresh"`
}

type AttendanceConfig struct {
	LedgerPath  string `yaml:"ledger_path"`
	GalleryPath string `yaml:"gallery_path"`
}

type StorageConfig struct {
	// FrameRetention is the number of most recent frames kept per camera; 0 disables cleanup.
	FrameRetention int `yaml:"frame_retention"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies .env and environment overrides.
// An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects threshold combinations the pipeline cannot honour.
func (c *Config) Validate() error {
	if c.Vision.MatchThreshold < -1 || c.Vision.MatchThreshold > 1 {
		return fmt.Errorf("vision.match_threshold must be within [-1, 1], got %v", c.Vision.MatchThreshold)
	}
	if c.Vision.EnrollMinFaceRatio >= c.Vision.EnrollMaxFaceRatio {
		return fmt.Errorf("vision.enroll_min_face_ratio (%v) must be below enroll_max_face_ratio (%v)",
			c.Vision.EnrollMinFaceRatio, c.Vision.EnrollMaxFaceRatio)
	}
	if c.Tracking.ConfidenceThreshold <= 0 || c.Tracking.ConfidenceThreshold > 1 {
		return fmt.Errorf("tracking.confidence_threshold must be within (0, 1], got %v", c.Tracking.ConfidenceThreshold)
	}
	if c.Tracking.HistorySize < 1 {
		return fmt.Errorf("tracking.history_size must be positive, got %d", c.Tracking.HistorySize)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "attend"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "resnet50_face_features.onnx"
	}
	if cfg.Vision.EmbedderInput == "" {
		cfg.Vision.EmbedderInput = "input_1"
	}
	if cfg.Vision.EmbedderOutput == "" {
		cfg.Vision.EmbedderOutput = "batch_normalization"
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MatchThreshold == 0 {
		cfg.Vision.MatchThreshold = 0.4
	}
	if cfg.Vision.EnrollMinConfidence == 0 {
		cfg.Vision.EnrollMinConfidence = 0.7
	}
	if cfg.Vision.EnrollMinFaceRatio == 0 {
		cfg.Vision.EnrollMinFaceRatio = 0.05
	}
	if cfg.Vision.EnrollMaxFaceRatio == 0 {
		cfg.Vision.EnrollMaxFaceRatio = 0.7
	}
	if cfg.Vision.RecognitionPadding == 0 {
		cfg.Vision.RecognitionPadding = 0.2
	}
	if cfg.Vision.Retries == 0 {
		cfg.Vision.Retries = 3
	}
	if cfg.Vision.RetryBackoff == 0 {
		cfg.Vision.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.Vision.DefaultFPS == 0 {
		cfg.Vision.DefaultFPS = 5
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 2
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Tracking.HistorySize == 0 {
		cfg.Tracking.HistorySize = 5
	}
	if cfg.Tracking.ConfidenceThreshold == 0 {
		cfg.Tracking.ConfidenceThreshold = 0.65
	}
	if cfg.Tracking.MemoryDuration == 0 {
		cfg.Tracking.MemoryDuration = 3 * time.Second
	}
	if cfg.Tracking.RecognitionInterval == 0 {
		cfg.Tracking.RecognitionInterval = 3
	}
	if cfg.Tracking.GalleryRefresh == 0 {
		cfg.Tracking.GalleryRefresh = 30 * time.Second
	}
	if cfg.Attendance.LedgerPath == "" {
		cfg.Attendance.LedgerPath = "attendance.csv"
	}
	if cfg.Attendance.GalleryPath == "" {
		cfg.Attendance.GalleryPath = "face_embeddings.msgpack"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATTEND_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATTEND_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ATTEND_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("ATTEND_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ATTEND_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ATTEND_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ATTEND_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ATTEND_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ATTEND_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ATTEND_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ATTEND_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ATTEND_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ATTEND_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ATTEND_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("ATTEND_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.MatchThreshold = f
		}
	}
	if v := os.Getenv("ATTEND_VISION_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("ATTEND_LEDGER_PATH"); v != "" {
		cfg.Attendance.LedgerPath = v
	}
	if v := os.Getenv("ATTEND_GALLERY_PATH"); v != "" {
		cfg.Attendance.GalleryPath = v
	}
	if v := os.Getenv("ATTEND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
