package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration with viper
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it. Using default values and environment variables.")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("db.path", "./data/beacon.db")

	// how long a song must be seen before it counts as a history entry
	viper.SetDefault("segmenter.min_play_ms", 15000)

	viper.SetDefault("history.page_limit", 100)
	viper.SetDefault("history.friend_limit", 20)
	viper.SetDefault("history.coalesce_window_ms", 120000)

	// the store caps membership filters at 10 ids per query
	viper.SetDefault("feed.chunk_size", 10)

	viper.SetDefault("undo.grace_ms", 4000)

	viper.SetDefault("ingest.rate_per_sec", 5)
	viper.SetDefault("ingest.burst", 10)

	viper.AutomaticEnv()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %v", err)
		}
		log.Println("Config file not found, using default values and environment variables")
	} else {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}
}
