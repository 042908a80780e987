package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Browser struct {
		DevToolsURL       string        `yaml:"devToolsURL" envconfig:"DEVTOOLS_URL"`
		Launch            bool          `yaml:"launch" envconfig:"LAUNCH"`
		Headless          bool          `yaml:"headless" envconfig:"HEADLESS"`
		DiscoveryInterval time.Duration `yaml:"discoveryInterval" envconfig:"DISCOVERY_INTERVAL"`
	} `yaml:"browser" envconfig:"BROWSER"`

	Capture struct {
		FPS         int           `yaml:"fps" envconfig:"FPS"`
		Timeslice   time.Duration `yaml:"timeslice" envconfig:"TIMESLICE"`
		JPEGQuality int           `yaml:"jpegQuality" envconfig:"JPEG_QUALITY"`
		Filename    string        `yaml:"filename" envconfig:"FILENAME"`
		MediaType   string        `yaml:"mediaType" envconfig:"MEDIA_TYPE"`
	} `yaml:"capture" envconfig:"CAPTURE"`

	Download struct {
		Dir     string `yaml:"dir" envconfig:"DIR"`
		TempDir string `yaml:"tempDir" envconfig:"TEMP_DIR"`
	} `yaml:"download" envconfig:"DOWNLOAD"`

	Sqlite struct {
		Dsn    string `yaml:"dsn" envconfig:"DSN"`
		Prefix string `yaml:"prefix" envconfig:"PREFIX"`
	} `yaml:"sqlite" envconfig:"SQLITE"`

	Log struct {
		Level  string   `yaml:"level" envconfig:"LEVEL"`
		Writer []string `yaml:"writer" envconfig:"WRITER"`
		File   string   `yaml:"file" envconfig:"FILE"`
	} `yaml:"log" envconfig:"LOG"`

	HTTP struct {
		Addr string `yaml:"addr" envconfig:"ADDR"`
	} `yaml:"http" envconfig:"HTTP"`
}

// EnvPrefix 环境变量前缀
const EnvPrefix = "TABCLIP"

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}

	c.Browser.Launch = true
	c.Browser.Headless = false
	c.Browser.DiscoveryInterval = 2 * time.Second

	c.Capture.FPS = 30
	c.Capture.Timeslice = time.Second
	c.Capture.JPEGQuality = 80
	c.Capture.Filename = "rec.mjpeg"
	c.Capture.MediaType = "video/x-motion-jpeg"

	c.Download.Dir = "downloads"
	c.Download.TempDir = os.TempDir()

	c.Sqlite.Dsn = "db.sqlite3"
	c.Sqlite.Prefix = "tabclip_"

	c.Log.Level = "debug"
	c.Log.Writer = []string{"console", "file"}
	c.Log.File = "logs/tabclip.log"

	c.HTTP.Addr = "127.0.0.1:7788"
	return c
}

// Load 加载配置：默认值 -> YAML 文件（可选）-> 环境变量
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("加载环境变量失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Capture.FPS <= 0 || c.Capture.FPS > 60 {
		return fmt.Errorf("capture.fps 超出范围: %d", c.Capture.FPS)
	}
	if c.Capture.Timeslice <= 0 {
		return fmt.Errorf("capture.timeslice 必须大于 0")
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpegQuality 超出范围: %d", c.Capture.JPEGQuality)
	}
	if c.Capture.Filename == "" {
		return fmt.Errorf("capture.filename 不能为空")
	}
	return nil
}

// FrameInterval 合成与录制的固定周期
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Capture.FPS)
}
