// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Gemini GeminiConfig `mapstructure:"gemini"`
	Image  ImageConfig  `mapstructure:"image"`
	Upload UploadConfig `mapstructure:"upload"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// StoreConfig 存储对话持久化后端的配置。
// backend 取值 "file"（默认，单一 JSON 表文件）或 "redis"。
type StoreConfig struct {
	Backend  string      `mapstructure:"backend"`
	FilePath string      `mapstructure:"file_path"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GeminiConfig 存储 Gemini 生成接口相关的配置。
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ImageConfig 存储图片抓取相关的配置。
type ImageConfig struct {
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
}

// UploadConfig 存储图片上传相关的配置。
// backend 取值 "local"（默认，写本地目录）或 "minio"。
type UploadConfig struct {
	Dir     string      `mapstructure:"dir"`
	Backend string      `mapstructure:"backend"`
	MinIO   MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 少数字段给出兜底默认值，便于最小配置文件即可启动
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("store.backend", "file")
	viper.SetDefault("store.file_path", "convo.json")
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.model", "gemini-1.5-flash")
	viper.SetDefault("gemini.timeout_seconds", 60)
	viper.SetDefault("image.fetch_timeout_seconds", 15)
	viper.SetDefault("upload.dir", "uploads")
	viper.SetDefault("upload.backend", "local")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
