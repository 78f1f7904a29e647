package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"neovance-monitor/internal/models"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// RiskProfile 单通道风险参数（μ/权重/敏感度指数/默认标准差）
// 同一临床类别的所有患者共享，加载后只读
type RiskProfile struct {
	Mu        float64 `yaml:"mu"`
	Weight    float64 `yaml:"weight"`
	Power     float64 `yaml:"power"`
	DefaultSD float64 `yaml:"default_sd"`
}

// Breakpoints 风险分数到等级的映射断点
type Breakpoints struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// ProfileTable 风险参数表（YAML文件结构）
type ProfileTable struct {
	Profiles    map[models.Channel]RiskProfile `yaml:"profiles"`
	Breakpoints Breakpoints                    `yaml:"breakpoints"`
}

// Config 监测服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 监测服务特定配置
	Monitor struct {
		TickInterval       time.Duration // 仿真/评估周期
		StatsWindow        time.Duration // 滚动统计窗口
		AcuteAfter         time.Duration // DETERIORATING 自动进入 ACUTE 的时长阈值
		ReEscalationWindow time.Duration // ACTED 无结局时回到 PENDING 的时长
		Breakpoints        Breakpoints
		Profiles           map[models.Channel]RiskProfile
		ProfileFile        string // 可选：YAML风险参数表路径
	}

	// 外部分类器配置
	Classifier struct {
		Enabled bool
		URL     string
		Timeout time.Duration
	}

	// Redis 缓存配置
	Cache struct {
		RealtimeKeyPrefix string // 实时数据缓存键前缀，如 "vital-focus:patient:"
		RealtimeSuffix    string // 实时数据缓存键后缀，如 ":realtime"
		AlertSuffix       string // 活跃报警缓存键后缀，如 ":alerts"
		RealtimeTTL       int    // 实时数据 TTL（秒）
	}

	// MQTT 事件发布配置
	Publisher struct {
		Enabled     bool
		TopicPrefix string // 如 "neovance/alerts/"
	}

	Log struct {
		Level  string
		Format string
	}
}

// DefaultProfiles 28周早产儿的默认风险参数（未提供YAML文件时使用）
func DefaultProfiles() map[models.Channel]RiskProfile {
	return map[models.Channel]RiskProfile{
		models.ChannelHeartRate:       {Mu: 145.0, Weight: 1.0, Power: 2, DefaultSD: 15.0},
		models.ChannelSpO2:            {Mu: 95.0, Weight: 3.0, Power: 4, DefaultSD: 2.5},
		models.ChannelRespiratoryRate: {Mu: 50.0, Weight: 1.5, Power: 2, DefaultSD: 10.0},
		models.ChannelTemperature:     {Mu: 37.0, Weight: 1.0, Power: 3, DefaultSD: 0.5},
		models.ChannelMAP:             {Mu: 35.0, Weight: 2.0, Power: 2, DefaultSD: 5.0},
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 数据库（默认值与环境变量）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "neonatal_ehr")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "neovance-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 监测配置
	cfg.Monitor.TickInterval = getEnvDuration("MONITOR_TICK_INTERVAL", 3*time.Second)
	cfg.Monitor.StatsWindow = getEnvDuration("MONITOR_STATS_WINDOW", 60*time.Minute)
	cfg.Monitor.AcuteAfter = getEnvDuration("MONITOR_ACUTE_AFTER", 45*time.Minute)
	cfg.Monitor.ReEscalationWindow = getEnvDuration("MONITOR_REESCALATION_WINDOW", 4*time.Hour)
	cfg.Monitor.Breakpoints = Breakpoints{Warning: 10.0, Critical: 20.0}
	cfg.Monitor.Profiles = DefaultProfiles()
	cfg.Monitor.ProfileFile = getEnv("MONITOR_PROFILE_FILE", "")

	// 从YAML文件加载风险参数表（可选，覆盖默认值）
	if cfg.Monitor.ProfileFile != "" {
		table, err := LoadProfileTable(cfg.Monitor.ProfileFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile table: %w", err)
		}
		if len(table.Profiles) > 0 {
			cfg.Monitor.Profiles = table.Profiles
		}
		if table.Breakpoints.Critical > 0 {
			cfg.Monitor.Breakpoints = table.Breakpoints
		}
	}

	// 外部分类器
	cfg.Classifier.Enabled = getEnv("CLASSIFIER_ENABLED", "false") == "true"
	cfg.Classifier.URL = getEnv("CLASSIFIER_URL", "http://localhost:8001/predict_risk")
	cfg.Classifier.Timeout = getEnvDuration("CLASSIFIER_TIMEOUT", 10*time.Second)

	// 缓存键约定
	cfg.Cache.RealtimeKeyPrefix = getEnv("CACHE_REALTIME_PREFIX", "vital-focus:patient:")
	cfg.Cache.RealtimeSuffix = ":realtime"
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.RealtimeTTL = getEnvInt("CACHE_REALTIME_TTL", 30)

	cfg.Publisher.Enabled = getEnv("PUBLISHER_ENABLED", "false") == "true"
	cfg.Publisher.TopicPrefix = getEnv("PUBLISHER_TOPIC_PREFIX", "neovance/alerts/")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// LoadProfileTable 从YAML文件加载风险参数表
func LoadProfileTable(path string) (*ProfileTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var table ProfileTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse profile file: %w", err)
	}

	// 每个通道的默认标准差不允许为零（下游用作除数）
	for ch, p := range table.Profiles {
		if p.DefaultSD <= 0 {
			return nil, fmt.Errorf("profile for channel %s has non-positive default_sd", ch)
		}
	}

	return &table, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
