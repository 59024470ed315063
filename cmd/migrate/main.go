package main

import (
	"os"

	"tourney-engine/internal/database"
	"tourney-engine/internal/logger"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	app := &cli.App{
		Name:  "migrate",
		Usage: "manage the tournament database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "path to the SQLite database",
				Value:   "tourney.db",
				EnvVars: []string{"DB_PATH"},
			},
		},
		Commands: []*cli.Command{
			gooseCommand("up", "apply all pending migrations"),
			gooseCommand("up-by-one", "apply the next pending migration"),
			gooseCommand("down", "roll back the latest migration"),
			gooseCommand("redo", "roll back and reapply the latest migration"),
			gooseCommand("status", "print the status of every migration"),
			gooseCommand("version", "print the current schema version"),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}

func gooseCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			log := logger.New()
			db, err := database.Open(c.String("db"), log)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(db, name, log)
		},
	}
}
