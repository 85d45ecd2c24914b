package main

import (
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/config"
	"github.com/smallbiznis/sponsorship/internal/distlock"
	"github.com/smallbiznis/sponsorship/internal/migration"
	"github.com/smallbiznis/sponsorship/internal/observability"
	"github.com/smallbiznis/sponsorship/internal/server"
	"github.com/smallbiznis/sponsorship/internal/sweeper"
	"github.com/smallbiznis/sponsorship/pkg/db"
	"go.uber.org/fx"
)

// Single process: HTTP API plus the expired reservation sweeper.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(config.NewSnowflakeNode),
		db.Module,
		migration.Module,
		clock.Module,
		server.Module,

		distlock.Module,
		sweeper.Module,
	)
	app.Run()
}
