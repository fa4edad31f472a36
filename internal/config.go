package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
	}

	Game struct {
		// 斷線寬限期：逾時未重連即判定棄權
		DisconnectGrace time.Duration
		// 閒置房間回收門檻（以最後活動時間計）
		IdleTimeout time.Duration
		// 已結束房間的保留時間
		FinishedLinger time.Duration
		// 清理掃描間隔
		SweepInterval time.Duration
		// AI 出手前的「思考」延遲範圍（純裝飾，不阻塞其他房間）
		AIDelayMin time.Duration
		AIDelayMax time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// fileConfig 配置檔案的原始結構
//
// 時間值在檔案裡以 "30s"、"10m" 這種人類可讀格式書寫，
// 讀入後用 time.ParseDuration 轉換。
type fileConfig struct {
	Server struct {
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Game struct {
		DisconnectGrace string `yaml:"disconnect_grace"`
		IdleTimeout     string `yaml:"idle_timeout"`
		FinishedLinger  string `yaml:"finished_linger"`
		SweepInterval   string `yaml:"sweep_interval"`
		AIDelayMin      string `yaml:"ai_delay_min"`
		AIDelayMax      string `yaml:"ai_delay_max"`
	} `yaml:"game"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 8080
	config.Server.ReadTimeout = 15 * time.Second
	config.Server.WriteTimeout = 15 * time.Second

	config.Game.DisconnectGrace = 30 * time.Second
	config.Game.IdleTimeout = 10 * time.Minute
	config.Game.FinishedLinger = 1 * time.Minute
	config.Game.SweepInterval = 30 * time.Second
	config.Game.AIDelayMin = 500 * time.Millisecond
	config.Game.AIDelayMax = 1000 * time.Millisecond

	config.Log.Level = "info"
	config.Log.Format = "text"
	return config
}

// LoadConfig 載入配置檔案，檔案不存在時回退到預設值
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if raw.Server.Port != 0 {
		config.Server.Port = raw.Server.Port
	}
	if raw.Log.Level != "" {
		config.Log.Level = raw.Log.Level
	}
	if raw.Log.Format != "" {
		config.Log.Format = raw.Log.Format
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"server.read_timeout", raw.Server.ReadTimeout, &config.Server.ReadTimeout},
		{"server.write_timeout", raw.Server.WriteTimeout, &config.Server.WriteTimeout},
		{"game.disconnect_grace", raw.Game.DisconnectGrace, &config.Game.DisconnectGrace},
		{"game.idle_timeout", raw.Game.IdleTimeout, &config.Game.IdleTimeout},
		{"game.finished_linger", raw.Game.FinishedLinger, &config.Game.FinishedLinger},
		{"game.sweep_interval", raw.Game.SweepInterval, &config.Game.SweepInterval},
		{"game.ai_delay_min", raw.Game.AIDelayMin, &config.Game.AIDelayMin},
		{"game.ai_delay_max", raw.Game.AIDelayMax, &config.Game.AIDelayMax},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if config.Game.AIDelayMax < config.Game.AIDelayMin {
		return nil, fmt.Errorf("ai_delay_max (%v) 不得小於 ai_delay_min (%v)",
			config.Game.AIDelayMax, config.Game.AIDelayMin)
	}

	return config, nil
}
