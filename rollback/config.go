package rollback

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	// MaxPlayers 单个会话支持的最大玩家数
	MaxPlayers = 4
	// MaxHistoryWindow 保留窗口上限（同时限制单个数据包携带的输入条数）
	MaxHistoryWindow = 128
)

// Config 引擎配置；可由环境变量加载，再由命令行覆盖
type Config struct {
	NumPlayers    int `env:"ROLLBACK_PLAYERS" envDefault:"2"`
	InputDelay    int `env:"ROLLBACK_INPUT_DELAY" envDefault:"2"`
	HistoryWindow int `env:"ROLLBACK_HISTORY_WINDOW" envDefault:"12"`
}

// DefaultConfig 两人、2 帧输入延迟、12 帧回滚窗口
func DefaultConfig() Config {
	return Config{NumPlayers: 2, InputDelay: 2, HistoryWindow: 12}
}

// LoadConfig 从环境变量加载并校验配置
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c Config) Validate() error {
	var errs []error
	if c.NumPlayers < 2 || c.NumPlayers > MaxPlayers {
		errs = append(errs, fmt.Errorf("players must be in [2,%d], got %d", MaxPlayers, c.NumPlayers))
	}
	if c.HistoryWindow < 1 || c.HistoryWindow > MaxHistoryWindow {
		errs = append(errs, fmt.Errorf("history window must be in [1,%d], got %d", MaxHistoryWindow, c.HistoryWindow))
	}
	if c.InputDelay < 0 || c.InputDelay >= c.HistoryWindow {
		errs = append(errs, fmt.Errorf("input delay must be in [0,%d), got %d", c.HistoryWindow, c.InputDelay))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
