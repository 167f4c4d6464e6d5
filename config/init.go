package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/customeros/ticketinbox/internal/cron/config"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/tracing"
)

type Config struct {
	AppConfig            *AppConfig
	Logger               *logger.Config
	Tracing              *tracing.JaegerConfig
	DatabaseConfig       *DatabaseConfig
	MailTicketSyncConfig *MailTicketSyncConfig
	ArchiveConfig        *ArchiveConfig
	CronConfig           *cron_config.Config
}

func InitConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	return ParseConfig()
}

// ParseConfig reads the configuration from the process environment only.
func ParseConfig() (*Config, error) {
	config := &Config{
		AppConfig:            &AppConfig{},
		Logger:               &logger.Config{},
		Tracing:              &tracing.JaegerConfig{},
		DatabaseConfig:       &DatabaseConfig{},
		MailTicketSyncConfig: &MailTicketSyncConfig{},
		ArchiveConfig:        &ArchiveConfig{},
		CronConfig:           &cron_config.Config{},
	}

	if err := env.Parse(config); err != nil {
		return nil, err
	}

	return config, nil
}
