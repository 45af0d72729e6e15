package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config is read once at startup; the rate constants are immutable for the
// process lifetime.
type Config struct {
	HTTPPort      string
	StorageDriver string
	MySQLDSN      string

	RedisAddr    string
	RedisChannel string
	KafkaBrokers []string // empty disables the Kafka sink
	KafkaTopic   string

	NotifyQueueSize int
	NotifyWorkers   int

	TaxRate           decimal.Decimal
	ShippingFee       decimal.Decimal
	LowStockThreshold int
}

func Load() *Config {
	return &Config{
		HTTPPort:      getEnv("PORT", "8080"),
		StorageDriver: getEnv("STORAGE_DRIVER", DriverMySQL),
		MySQLDSN:      getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/stockroom?parseTime=true"),

		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisChannel: getEnv("REDIS_CHANNEL", "stock.changes"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "stock-changes"),

		NotifyQueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 10000),
		NotifyWorkers:   getEnvInt("NOTIFY_WORKERS", 10),

		TaxRate:           getEnvDecimal("TAX_RATE", "0.08"),
		ShippingFee:       getEnvDecimal("SHIPPING_FEE", "5.99"),
		LowStockThreshold: getEnvInt("LOW_STOCK_THRESHOLD", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
