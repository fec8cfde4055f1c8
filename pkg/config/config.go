package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server" comment:"HTTP指标服务配置"`
	Remoting  RemotingConfig  `yaml:"remoting" mapstructure:"remoting" comment:"远程通信配置"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue" comment:"分级数据队列配置"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector" comment:"采集器配置"`
	Log       ZapLogConfig    `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（暴露 /metrics /health）
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled" env:"HTTP_ENABLED" comment:"是否开启HTTP服务" default:"true"`
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"HTTP_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"HTTP_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// RemotingConfig manager <-> collector 通信配置
type RemotingConfig struct {
	Server RemotingServerConfig `yaml:"server" mapstructure:"server" comment:"服务端（manager）配置"`
	Client RemotingClientConfig `yaml:"client" mapstructure:"client" comment:"客户端（collector）配置"`
}

// RemotingServerConfig 服务端监听配置
type RemotingServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"REMOTING_SERVER_ADDR" validate:"required,hostname_port" comment:"监听地址"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0" comment:"无读写空闲超时，超时关闭连接" default:"30s"`
	UseEpoll     bool          `yaml:"use_epoll" mapstructure:"use_epoll" comment:"是否使用系统epoll" default:"true"`
	Compress     bool          `yaml:"compress" mapstructure:"compress" comment:"是否gzip压缩帧" default:"true"`
	Workers      int           `yaml:"workers" mapstructure:"workers" validate:"required,gt=0" comment:"消息处理协程数" default:"16"`
	MaxFrameSize int           `yaml:"max_frame_size" mapstructure:"max_frame_size" validate:"required,gt=0" comment:"单帧最大字节数" default:"16777216"`
}

// RemotingClientConfig 客户端连接配置
type RemotingClientConfig struct {
	ManagerAddr       string        `yaml:"manager_addr" mapstructure:"manager_addr" env:"REMOTING_MANAGER_ADDR" validate:"required,hostname_port" comment:"manager地址"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"required,gt=0" comment:"连接超时" default:"3s"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval" validate:"required,gt=0" comment:"重连间隔" default:"10s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0" comment:"空闲超时" default:"30s"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval" validate:"required,gt=0" comment:"心跳间隔" default:"5s"`
	SyncTimeout       time.Duration `yaml:"sync_timeout" mapstructure:"sync_timeout" validate:"required,gt=0" comment:"同步调用超时" default:"3s"`
	Compress          bool          `yaml:"compress" mapstructure:"compress" comment:"是否gzip压缩帧" default:"true"`
	Workers           int           `yaml:"workers" mapstructure:"workers" validate:"required,gt=0" comment:"消息处理协程数" default:"8"`
	MaxFrameSize      int           `yaml:"max_frame_size" mapstructure:"max_frame_size" validate:"required,gt=0" comment:"单帧最大字节数" default:"16777216"`
}

// QueueConfig 分级数据队列配置
type QueueConfig struct {
	PollTimeout time.Duration `yaml:"poll_timeout" mapstructure:"poll_timeout" validate:"required,gt=0" comment:"单次消费最大等待时间" default:"2s"`
	Capacity    int           `yaml:"capacity" mapstructure:"capacity" validate:"gte=0" comment:"首级队列容量，0为不限制" default:"0"`
}

// CollectorConfig 采集器配置
type CollectorConfig struct {
	Name      string   `yaml:"name" mapstructure:"name" env:"COLLECTOR_NAME" validate:"required" comment:"采集器唯一名称"`
	Workers   int      `yaml:"workers" mapstructure:"workers" validate:"required,gt=0" comment:"采集任务并发数" default:"10"`
	Consumers []string `yaml:"consumers" mapstructure:"consumers" validate:"required,min=1" comment:"队列消费者（流水线阶段）名称"`
	// OneTimeTimeout 一次性任务单次采集上限，0 取 DefaultOneTimeTimeout
	OneTimeTimeout time.Duration `yaml:"one_time_timeout" mapstructure:"one_time_timeout" validate:"gte=0" comment:"一次性任务超时" default:"10s"`
}

// DefaultOneTimeTimeout 与 manager 同步调用的默认等待时间一致
const DefaultOneTimeTimeout = 10 * time.Second

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" env:"LOG_COMPRESS" comment:"是否压缩过期日志" default:"true"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:      true,
			Addr:         "0.0.0.0:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Remoting: RemotingConfig{
			Server: RemotingServerConfig{
				Addr:         "0.0.0.0:1158",
				IdleTimeout:  30 * time.Second,
				UseEpoll:     true,
				Compress:     true,
				Workers:      16,
				MaxFrameSize: 16 * 1024 * 1024,
			},
			Client: RemotingClientConfig{
				ManagerAddr:       "127.0.0.1:1158",
				ConnectTimeout:    3 * time.Second,
				ReconnectInterval: 10 * time.Second,
				IdleTimeout:       30 * time.Second,
				HeartbeatInterval: 5 * time.Second,
				SyncTimeout:       3 * time.Second,
				Compress:          true,
				Workers:           8,
				MaxFrameSize:      16 * 1024 * 1024,
			},
		},
		Queue: QueueConfig{
			PollTimeout: 2 * time.Second,
			Capacity:    0,
		},
		Collector: CollectorConfig{
			Name:           "main-default-collector",
			Workers:        10,
			Consumers:      []string{"exporter", "transmitter"},
			OneTimeTimeout: DefaultOneTimeTimeout,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// LoadConfigWithCli 优先级：显式设置的 Flag > ENV > YAML > 默认值
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	cfg := NewDefaultConfig()
	v := viper.New()
	if err := setDefaults(v, cfg); err != nil {
		return nil, err
	}

	// 1. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 2. 环境变量 REMOTING_CLIENT_MANAGER_ADDR -> remoting.client.manager_addr
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 3. 仅绑定命令行中显式设置的 flag（flag 默认值已包含在默认配置中）
	var bindErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	return decode(v, cfg)
}

// setDefaults 将默认配置逐项登记到 viper，使 AutomaticEnv 对所有配置项生效
func setDefaults(v *viper.Viper, cfg *Config) error {
	var m map[string]any
	if err := mapstructure.Decode(cfg, &m); err != nil {
		return fmt.Errorf("flatten default config: %w", err)
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			if sub, ok := val.(map[string]any); ok {
				walk(prefix+k+".", sub)
				continue
			}
			v.SetDefault(prefix+k, val)
		}
	}
	walk("", m)
	return nil
}

// LoadFile 仅从YAML文件加载（测试、工具场景）
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return decode(v, NewDefaultConfig())
}

// decode 将 viper 中的配置覆盖到默认配置上并校验
func decode(v *viper.Viper, cfg *Config) (*Config, error) {
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := decoder.Decode(nestFlagKeys(v.AllSettings())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// nestFlagKeys flag 名中的 '-' 转为 '_'，与 mapstructure 标签对齐
func nestFlagKeys(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, val := range in {
		key := strings.ReplaceAll(k, "-", "_")
		if sub, ok := val.(map[string]any); ok {
			out[key] = nestFlagKeys(sub)
			continue
		}
		out[key] = val
	}
	return out
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验通信配置
	if err := c.Remoting.Validate(); err != nil {
		return err
	}
	// 	3，校验采集器与队列
	if err := c.Collector.Validate(); err != nil {
		return err
	}
	// 	4，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
