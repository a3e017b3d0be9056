package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config 服务配置
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	AI       AIConfig       `toml:"ai"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `toml:"type"` // sqlite, mysql, postgres
	DSN  string `toml:"dsn"`  // data source name
}

// AIConfig AI微服务配置
type AIConfig struct {
	BaseURL                string  `toml:"base_url"`
	TimeoutSeconds         int     `toml:"timeout_seconds"`
	RAGSimilarityThreshold float64 `toml:"rag_similarity_threshold"`
	RAGMaxReferences       int     `toml:"rag_max_references"`
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// 设置默认值
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 3000
	}
	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
	}
	if config.Database.DSN == "" {
		config.Database.DSN = "./data/test_case_management.db"
	}
	if config.AI.BaseURL == "" {
		config.AI.BaseURL = "http://localhost:8000"
	}
	if config.AI.TimeoutSeconds == 0 {
		config.AI.TimeoutSeconds = 30
	}
	if config.AI.RAGSimilarityThreshold == 0 {
		config.AI.RAGSimilarityThreshold = 0.7
	}
	if config.AI.RAGMaxReferences == 0 {
		config.AI.RAGMaxReferences = 3
	}

	return &config, nil
}

// GetAddr 获取服务器监听地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout AI请求超时时间
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
