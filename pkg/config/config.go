package config

import (
	"errors"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Debate DebateConfig
	Oracle OracleConfig
}

type ServerConfig struct {
	Address string
}

type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     int
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// DebateConfig 定義配對與生命週期的參數，全部可由配置文件或環境變量調整
type DebateConfig struct {
	MaxRoomSize            int `mapstructure:"max_room_size"`             // 房間人數上限
	MinParticipantsToStart int `mapstructure:"min_participants_to_start"` // 自動開始所需的最少人數
	StartWaitSeconds       int `mapstructure:"start_wait_seconds"`        // 達到最少人數後的等待秒數
	CaptureWindowSeconds   int `mapstructure:"capture_window_seconds"`    // 發言記錄窗口的持續秒數
}

type OracleConfig struct {
	URL            string
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./pkg/config")

	// 未設置時的預設值
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("debate.max_room_size", 6)
	viper.SetDefault("debate.min_participants_to_start", 2)
	viper.SetDefault("debate.start_wait_seconds", 30)
	viper.SetDefault("debate.capture_window_seconds", 180)
	viper.SetDefault("oracle.timeout_seconds", 20)

	// 允許用環境變量覆蓋配置文件
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// 配置文件不存在時改用預設值與環境變量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
