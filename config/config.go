package config

import (
	"time"
)

type AppConfig struct {
	APIPort      string `env:"PORT,required" envDefault:"12222"`
	APIKey       string `env:"API_KEY,required"`
	RabbitMQURL  string `env:"RABBITMQ_URL"`
	PodName      string `env:"POD_NAME" envDefault:"local"`
	PodNamespace string `env:"POD_NAMESPACE" envDefault:"default"`
}

type DatabaseConfig struct {
	Driver          string `env:"TICKETS_DB_DRIVER" envDefault:"postgres"`
	Host            string `env:"TICKETS_POSTGRES_HOST"`
	Port            string `env:"TICKETS_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"TICKETS_POSTGRES_USER"`
	DBName          string `env:"TICKETS_POSTGRES_DB_NAME" envDefault:"tickets"`
	Password        string `env:"TICKETS_POSTGRES_PASSWORD"`
	MaxConn         int    `env:"TICKETS_POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"TICKETS_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"TICKETS_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"TICKETS_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"TICKETS_POSTGRES_SSL_MODE" envDefault:"require"`
}

// DefaultAbortTimeoutMs is the production watchdog duration used when
// MAIL_TICKET_SYNC_ABORT_TIMEOUT_MS is unset.
const DefaultAbortTimeoutMs = 30000

type MailTicketSyncConfig struct {
	Enabled        bool `env:"MAIL_TICKET_SYNC_ENABLED" envDefault:"true"`
	AbortTimeoutMs int  `env:"MAIL_TICKET_SYNC_ABORT_TIMEOUT_MS" envDefault:"30000"`
	MaxMessages    int  `env:"MAIL_TICKET_SYNC_MAX_MESSAGES" envDefault:"500"`

	ImapServer        string `env:"MAIL_TICKET_SYNC_IMAP_SERVER"`
	ImapPort          int    `env:"MAIL_TICKET_SYNC_IMAP_PORT" envDefault:"993"`
	ImapTLS           bool   `env:"MAIL_TICKET_SYNC_IMAP_TLS" envDefault:"true"`
	ImapUsername      string `env:"MAIL_TICKET_SYNC_IMAP_USERNAME"`
	ImapPassword      string `env:"MAIL_TICKET_SYNC_IMAP_PASSWORD"`
	ImapAuthMechanism string `env:"MAIL_TICKET_SYNC_IMAP_AUTH" envDefault:"login"`
	ImapFolder        string `env:"MAIL_TICKET_SYNC_IMAP_FOLDER" envDefault:"INBOX"`
	ConnectTimeoutSec int    `env:"MAIL_TICKET_SYNC_CONNECT_TIMEOUT_SEC" envDefault:"30"`
	CommandTimeoutSec int    `env:"MAIL_TICKET_SYNC_COMMAND_TIMEOUT_SEC" envDefault:"60"`
}

// ArchiveConfig enables raw message archiving when Provider is s3 or r2.
type ArchiveConfig struct {
	Provider        string `env:"MAIL_TICKET_ARCHIVE_PROVIDER"`
	Bucket          string `env:"MAIL_TICKET_ARCHIVE_BUCKET"`
	Prefix          string `env:"MAIL_TICKET_ARCHIVE_PREFIX" envDefault:"ticket-inbox"`
	Region          string `env:"MAIL_TICKET_ARCHIVE_REGION" envDefault:"eu-west-1"`
	R2AccountID     string `env:"MAIL_TICKET_ARCHIVE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"MAIL_TICKET_ARCHIVE_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"MAIL_TICKET_ARCHIVE_ACCESS_KEY_SECRET"`
}

func (c *MailTicketSyncConfig) AbortTimeout() time.Duration {
	if c == nil || c.AbortTimeoutMs <= 0 {
		return DefaultAbortTimeoutMs * time.Millisecond
	}
	return time.Duration(c.AbortTimeoutMs) * time.Millisecond
}

func (c *MailTicketSyncConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

func (c *MailTicketSyncConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec) * time.Second
}
