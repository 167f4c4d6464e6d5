package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Ticket inbox sync trigger, every 5 minutes
	CronScheduleTicketInboxSync string `env:"MAIL_TICKET_SYNC_SCHEDULE" envDefault:"0 */5 * * * *"`
}
