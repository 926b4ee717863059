package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	LeftVenue  string
	RightVenue string

	LighterBaseURL    string
	LighterWsURL      string
	GrvtMarketDataURL string
	GrvtTradeURL      string
	HyperliquidURL    string

	// StreamSymbols are the base symbols whose books are streamed live.
	StreamSymbols []string

	Workers         int
	OrderExpirySecs int
	RateRefreshSecs int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment directly")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),

		LeftVenue:  getEnv("LEFT_VENUE", "lighter"),
		RightVenue: getEnv("RIGHT_VENUE", "grvt"),

		LighterBaseURL:    getEnv("LIGHTER_BASE_URL", "https://mainnet.zklighter.elliot.ai"),
		LighterWsURL:      getEnv("LIGHTER_WS_URL", "wss://mainnet.zklighter.elliot.ai/stream"),
		GrvtMarketDataURL: getEnv("GRVT_MARKET_DATA_URL", "https://market-data.grvt.io"),
		GrvtTradeURL:      getEnv("GRVT_TRADE_URL", "https://trades.grvt.io"),
		HyperliquidURL:    getEnv("HYPERLIQUID_URL", "https://api.hyperliquid.xyz"),

		StreamSymbols: getEnvList("STREAM_SYMBOLS", []string{"BTC", "ETH", "SOL"}),

		Workers:         getEnvInt("BATCH_WORKERS", 4),
		OrderExpirySecs: getEnvInt("ORDER_EXPIRY_SECS", 10),
		RateRefreshSecs: getEnvInt("RATE_REFRESH_SECS", 30),
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
