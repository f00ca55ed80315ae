package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mkalinina/marketauth/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultCallbackBaseURL = "http://localhost:8000"
	defaultFrontendBaseURL = "http://localhost:3006"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Signs JWT access tokens and oauth state tokens, required to be set
	SecretKey string

	// Environment
	Environment string

	// Federated identity providers
	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string

	// Base URL this service is reachable on, used for oauth callbacks
	CallbackBaseURL string

	// Frontend the caller lands on after a federated login
	FrontendBaseURL string

	// Object upload service that hosts avatar images
	UploadAddr string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		CallbackBaseURL: defaultCallbackBaseURL,
		FrontendBaseURL: defaultFrontendBaseURL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"SECRET_KEY":             setString(&c.SecretKey),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"GOOGLE_CLIENT_ID":       setString(&c.GoogleClientID),
		"GOOGLE_CLIENT_SECRET":   setString(&c.GoogleClientSecret),
		"FACEBOOK_CLIENT_ID":     setString(&c.FacebookClientID),
		"FACEBOOK_CLIENT_SECRET": setString(&c.FacebookClientSecret),
		"CALLBACK_BASE_URL":      setString(&c.CallbackBaseURL),
		"FRONTEND_BASE_URL":      setString(&c.FrontendBaseURL),
		"UPLOAD_ADDRESS":         setString(&c.UploadAddr),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("marketauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.CallbackBaseURL, "callback-base-url", c.CallbackBaseURL, "Base URL for oauth callbacks")
	fs.StringVar(&c.FrontendBaseURL, "frontend-base-url", c.FrontendBaseURL, "Frontend base URL for post-login redirects")
	fs.StringVar(&c.UploadAddr, "upload", c.UploadAddr, "Object upload service address")

	return fs.Parse(args)
}
