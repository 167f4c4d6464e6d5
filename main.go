package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/ticketinbox/config"
	"github.com/customeros/ticketinbox/internal/database"
	"github.com/customeros/ticketinbox/internal/repository"
	"github.com/customeros/ticketinbox/server"
)

func main() {
	app := &cli.App{
		Name:  "ticketinbox",
		Usage: "syncs a support mailbox into tickets",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					_, ticketsDB, err := setup()
					if err != nil {
						return err
					}
					if err := repository.MigrateDB(ticketsDB); err != nil {
						return cli.Exit("Database migration failed: "+err.Error(), 1)
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Start the application server",
				Action: func(c *cli.Context) error {
					cfg, ticketsDB, err := setup()
					if err != nil {
						return err
					}

					log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
					log.Println("Ticket inbox starting up...")

					srv, err := server.NewServer(cfg, ticketsDB)
					if err != nil {
						return cli.Exit("Server setup failed: "+err.Error(), 1)
					}
					if err := srv.Run(); err != nil {
						return cli.Exit("Server startup failed: "+err.Error(), 1)
					}

					log.Println("Shutdown complete")
					return nil
				},
			},
			{
				Name:  "sync-once",
				Usage: "Run a single mailbox sync pass and exit",
				Action: func(c *cli.Context) error {
					cfg, ticketsDB, err := setup()
					if err != nil {
						return err
					}

					srv, err := server.NewServer(cfg, ticketsDB)
					if err != nil {
						return cli.Exit("Server setup failed: "+err.Error(), 1)
					}
					if err := srv.RunSyncOnce(context.Background()); err != nil {
						return cli.Exit("Sync pass did not finish cleanly: "+err.Error(), 1)
					}
					log.Println("Sync pass finished")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, cli.Exit("Config initialization failed: "+err.Error(), 1)
	}

	ticketsDB, err := database.InitTicketsDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, cli.Exit("Tickets database initialization failed: "+err.Error(), 1)
	}
	return cfg, ticketsDB, nil
}
