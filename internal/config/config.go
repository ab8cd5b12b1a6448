package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ModeGrid     = "grid"
	ModeBreakout = "breakout"
	ModeBacktest = "backtest"
)

type Config struct {
	Exchange ExchangeConfig
	Feed     FeedConfig
	Order    OrderConfig
	Grid     GridConfig
	Breakout BreakoutConfig
	Backtest BacktestConfig
	Runtime  RuntimeConfig
}

type ExchangeConfig struct {
	BaseUrl   string
	WSUrl     string
	ApiKey    string
	Secret    string
	Pair      string
	UseStream bool
}

type FeedConfig struct {
	BaseUrl string
}

type OrderConfig struct {
	Slippage         float64
	FillWait         time.Duration
	OrderTTL         time.Duration
	MaxResubmits     int
	MaxQueryFailures int
	ExecutionCount   int
	TimeInForce      string
	SubmitAttempts   int
	SubmitRetryDelay time.Duration
}

type GridConfig struct {
	Legs         int
	BasePrice    float64
	OpenRange    float64
	CloseRange   float64
	Lot          float64
	Side         string
	OrderTTL     time.Duration
	TickInterval time.Duration
}

type BreakoutConfig struct {
	Lot               float64
	CandleSize        time.Duration
	HistoryMultiplier int
	EntryTerm         int
	CloseTerm         int
	TickInterval      time.Duration
}

type BacktestConfig struct {
	HistoryMultiplier int
	ArchivePath       string
}

type RuntimeConfig struct {
	Mode        string
	DryRun      bool
	MetricsAddr string
	Log         LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Flags registers the command line overrides understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("bot", pflag.ContinueOnError)
	fs.String("config", "", "путь к файлу конфигурации")
	fs.String("mode", "", "режим: grid, breakout или backtest")
	fs.Bool("dry-run", false, "бумажная торговля без обращения к бирже")
	return fs
}

func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BFBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Не удалось прочитать конфигурацию: %w", err)
		}
	}

	if flags != nil {
		if f := flags.Lookup("mode"); f != nil && f.Changed {
			if err := v.BindPFlag("runtime.mode", f); err != nil {
				return nil, err
			}
		}
		if f := flags.Lookup("dry-run"); f != nil && f.Changed {
			if err := v.BindPFlag("runtime.dry_run", f); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}

	cfg.Exchange = ExchangeConfig{
		BaseUrl:   v.GetString("exchange.base_url"),
		WSUrl:     v.GetString("exchange.ws_url"),
		ApiKey:    envSub(v, "exchange.api_key"),
		Secret:    envSub(v, "exchange.secret"),
		Pair:      v.GetString("exchange.pair"),
		UseStream: v.GetBool("exchange.use_stream"),
	}

	cfg.Feed = FeedConfig{
		BaseUrl: v.GetString("feed.base_url"),
	}

	cfg.Order = OrderConfig{
		Slippage:         v.GetFloat64("order.slippage"),
		FillWait:         v.GetDuration("order.fill_wait"),
		OrderTTL:         v.GetDuration("order.order_ttl"),
		MaxResubmits:     v.GetInt("order.max_resubmits"),
		MaxQueryFailures: v.GetInt("order.max_query_failures"),
		ExecutionCount:   v.GetInt("order.execution_count"),
		TimeInForce:      strings.ToUpper(v.GetString("order.time_in_force")),
		SubmitAttempts:   v.GetInt("order.submit_attempts"),
		SubmitRetryDelay: v.GetDuration("order.submit_retry_delay"),
	}

	cfg.Grid = GridConfig{
		Legs:         v.GetInt("grid.legs"),
		BasePrice:    v.GetFloat64("grid.base_price"),
		OpenRange:    v.GetFloat64("grid.open_range"),
		CloseRange:   v.GetFloat64("grid.close_range"),
		Lot:          v.GetFloat64("grid.lot"),
		Side:         strings.ToUpper(v.GetString("grid.side")),
		OrderTTL:     v.GetDuration("grid.order_ttl"),
		TickInterval: v.GetDuration("grid.tick_interval"),
	}

	cfg.Breakout = BreakoutConfig{
		Lot:               v.GetFloat64("breakout.lot"),
		CandleSize:        v.GetDuration("breakout.candle_size"),
		HistoryMultiplier: v.GetInt("breakout.history_multiplier"),
		EntryTerm:         v.GetInt("breakout.entry_term"),
		CloseTerm:         v.GetInt("breakout.close_term"),
		TickInterval:      v.GetDuration("breakout.tick_interval"),
	}

	cfg.Backtest = BacktestConfig{
		HistoryMultiplier: v.GetInt("backtest.history_multiplier"),
		ArchivePath:       v.GetString("backtest.archive_path"),
	}

	cfg.Runtime = RuntimeConfig{
		Mode:        strings.ToLower(v.GetString("runtime.mode")),
		DryRun:      v.GetBool("runtime.dry_run"),
		MetricsAddr: v.GetString("runtime.metrics_addr"),
		Log: LogConfig{
			Level:      v.GetString("runtime.log.level"),
			Format:     v.GetString("runtime.log.format"),
			File:       v.GetString("runtime.log.file"),
			MaxSize:    v.GetInt("runtime.log.max_size"),
			MaxBackups: v.GetInt("runtime.log.max_backups"),
			MaxAge:     v.GetInt("runtime.log.max_age"),
			Compress:   v.GetBool("runtime.log.compress"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.base_url", "https://api.bitflyer.com")
	v.SetDefault("exchange.ws_url", "wss://ws.lightstream.bitflyer.com/json-rpc")
	v.SetDefault("exchange.pair", "BTC_JPY")
	v.SetDefault("exchange.use_stream", false)

	v.SetDefault("feed.base_url", "https://api.cryptowat.ch/markets/bitflyer/btcjpy")

	v.SetDefault("order.slippage", 100)
	v.SetDefault("order.fill_wait", time.Minute)
	v.SetDefault("order.order_ttl", time.Minute)
	v.SetDefault("order.max_resubmits", 30)
	v.SetDefault("order.max_query_failures", 10)
	v.SetDefault("order.execution_count", 10)
	v.SetDefault("order.time_in_force", "GTC")
	v.SetDefault("order.submit_attempts", 5)
	v.SetDefault("order.submit_retry_delay", time.Minute)

	v.SetDefault("grid.legs", 5)
	v.SetDefault("grid.base_price", 1072026)
	v.SetDefault("grid.open_range", 10000)
	v.SetDefault("grid.close_range", 8000)
	v.SetDefault("grid.lot", 0.05)
	v.SetDefault("grid.side", "BUY")
	v.SetDefault("grid.order_ttl", 525600*time.Minute)
	v.SetDefault("grid.tick_interval", 18*time.Second)

	v.SetDefault("breakout.lot", 0.2)
	v.SetDefault("breakout.candle_size", 240*time.Minute)
	v.SetDefault("breakout.history_multiplier", 100)
	v.SetDefault("breakout.entry_term", 30)
	v.SetDefault("breakout.close_term", 7)
	v.SetDefault("breakout.tick_interval", time.Minute)

	v.SetDefault("backtest.history_multiplier", 6000)
	v.SetDefault("backtest.archive_path", "")

	v.SetDefault("runtime.mode", ModeBreakout)
	v.SetDefault("runtime.dry_run", false)
	v.SetDefault("runtime.metrics_addr", ":9102")
	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "text")
	v.SetDefault("runtime.log.file", "stdout")
	v.SetDefault("runtime.log.max_size", 50)
	v.SetDefault("runtime.log.max_backups", 5)
	v.SetDefault("runtime.log.max_age", 30)
	v.SetDefault("runtime.log.compress", true)
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Runtime.Mode {
	case ModeGrid, ModeBreakout, ModeBacktest:
	default:
		errs = append(errs, fmt.Errorf("Неизвестный режим: %q", c.Runtime.Mode))
	}
	if c.Exchange.Pair == "" {
		errs = append(errs, errors.New("Не задана торговая пара"))
	}
	if c.Order.FillWait <= 0 {
		errs = append(errs, errors.New("order.fill_wait должен быть больше нуля"))
	}
	if c.Order.Slippage < 0 {
		errs = append(errs, errors.New("order.slippage не может быть отрицательным"))
	}

	switch c.Runtime.Mode {
	case ModeGrid:
		if c.Grid.Legs < 1 {
			errs = append(errs, errors.New("grid.legs должен быть больше нуля"))
		}
		if c.Grid.Lot <= 0 {
			errs = append(errs, errors.New("grid.lot должен быть больше нуля"))
		}
		if c.Grid.Side != "BUY" && c.Grid.Side != "SELL" {
			errs = append(errs, fmt.Errorf("Некорректное направление сетки: %s", c.Grid.Side))
		}
		if c.Grid.TickInterval <= 0 {
			errs = append(errs, errors.New("grid.tick_interval должен быть больше нуля"))
		}
	case ModeBreakout, ModeBacktest:
		if c.Breakout.Lot <= 0 {
			errs = append(errs, errors.New("breakout.lot должен быть больше нуля"))
		}
		if c.Breakout.EntryTerm < 1 || c.Breakout.CloseTerm < 1 {
			errs = append(errs, errors.New("breakout.entry_term и breakout.close_term должны быть не меньше 1"))
		}
		if c.Breakout.CandleSize < time.Minute {
			errs = append(errs, errors.New("breakout.candle_size должен быть не меньше минуты"))
		}
		if c.Breakout.TickInterval <= 0 {
			errs = append(errs, errors.New("breakout.tick_interval должен быть больше нуля"))
		}
	}

	return errors.Join(errs...)
}

func envSub(v *viper.Viper, key string) string {
	val := v.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
