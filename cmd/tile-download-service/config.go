package main

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP   HTTP   `envPrefix:"HTTP_"`
		Logger Logger `envPrefix:"LOGGER_"`
		Tiles  Tiles  `envPrefix:"TILES_"`
	}

	HTTP struct {
		Server ServerConfig `envPrefix:"SERVER_"`
	}

	ServerConfig struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
		CORSOrigin   string        `env:"CORS_ORIGIN" envDefault:"*"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	// Tiles holds the defaults applied to every task. APIKey and Host are
	// never taken from requests.
	Tiles struct {
		APIKey       string `env:"API_KEY"`
		Host         string `env:"HOST" envDefault:"tile.thunderforest.com"`
		OutputRoot   string `env:"OUTPUT_ROOT" envDefault:"./tiles"`
		MaxTiles     int    `env:"MAX_TILES" envDefault:"1000"`
		Threads      int    `env:"THREADS" envDefault:"4"`
		// Ceilings on what a single request may ask for.
		MaxZoom      int    `env:"MAX_ZOOM" envDefault:"18"`
		MaxRequested int    `env:"MAX_REQUESTED" envDefault:"1000000"`
		MaxThreads   int    `env:"MAX_THREADS" envDefault:"16"`
		Timeout      int    `env:"TIMEOUT" envDefault:"30"`
		RateLimit    int    `env:"RATE_LIMIT" envDefault:"0"`
		UseHTTP2     bool   `env:"USE_HTTP2" envDefault:"true"`
		ProxyURL     string `env:"PROXY_URL"`
		UserAgent    string `env:"USER_AGENT" envDefault:"regiontiles-service"`
	}
)

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
