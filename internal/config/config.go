package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8081）

	JWTSecret string // JWT署名シークレット（リモートAPIと共有）

	GoEnv string // dev/prod
	FEURL string // フロントURL（CORS）

	ShopAPIURL      string        // リモートAPIのベースURL
	ShopAPITimeout  time.Duration // 通常呼び出しのタイムアウト
	TransferTimeout time.Duration // 送金呼び出しのタイムアウト

	RedisAddress  string
	RedisPassword string

	KafkaBrokers []string // 空なら照合イベントは送らない

	FreeDeliveryThreshold int64            // これを超えたら配送料0
	DeliveryFee           int64            // 配送料
	Vouchers              map[string]int64 // クーポンコード -> 割引率(%)

	CatalogCacheTTL time.Duration // 商品一覧キャッシュ
	InflightLockTTL time.Duration // 二重送信防止ロック
}

func (c Config) IsDev() bool {
	return c.GoEnv == "dev"
}

// Loadは環境変数
func Load() (Config, error) {
	var err error
	cfg := Config{
		Port:      os.Getenv("PORT"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		GoEnv:     os.Getenv("GO_ENV"),
		FEURL:     os.Getenv("FE_URL"),

		ShopAPIURL: strings.TrimRight(getenv("SHOP_API_URL", "http://localhost:8080/api"), "/"),

		RedisAddress:  getenv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
	}

	if cfg.ShopAPITimeout, err = durationOr("SHOP_API_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TransferTimeout, err = durationOr("TRANSFER_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CatalogCacheTTL, err = durationOr("CATALOG_CACHE_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.InflightLockTTL, err = durationOr("INFLIGHT_LOCK_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.FreeDeliveryThreshold, err = int64Or("FREE_DELIVERY_THRESHOLD", 500); err != nil {
		return Config{}, err
	}
	if cfg.DeliveryFee, err = int64Or("DELIVERY_FEE", 40); err != nil {
		return Config{}, err
	}
	if cfg.Vouchers, err = ParseVouchers(os.Getenv("VOUCHERS")); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.FEURL == "" {
		return Config{}, fmt.Errorf("FE_URL is required")
	}
	if cfg.DeliveryFee < 0 || cfg.FreeDeliveryThreshold < 0 {
		return Config{}, fmt.Errorf("DELIVERY_FEE and FREE_DELIVERY_THRESHOLD must not be negative")
	}

	return cfg, nil
}

// "SAVE10=10,WELCOME=5" を読む
func ParseVouchers(s string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, part := range splitList(s) {
		code, pct, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("VOUCHERS: %q must be CODE=percent", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(pct), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("VOUCHERS: %q must be number: %w", part, err)
		}
		if n <= 0 || n > 100 {
			return nil, fmt.Errorf("VOUCHERS: %q percent must be 1-100", part)
		}
		out[strings.ToUpper(strings.TrimSpace(code))] = n
	}
	return out, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func int64Or(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
