package main

import (
	"github.com/smallbiznis/sponsorship/internal/allocation"
	"github.com/smallbiznis/sponsorship/internal/audit"
	"github.com/smallbiznis/sponsorship/internal/budget"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/config"
	"github.com/smallbiznis/sponsorship/internal/distlock"
	"github.com/smallbiznis/sponsorship/internal/events"
	"github.com/smallbiznis/sponsorship/internal/observability"
	"github.com/smallbiznis/sponsorship/internal/supportrule"
	"github.com/smallbiznis/sponsorship/internal/sweeper"
	"github.com/smallbiznis/sponsorship/pkg/db"
	"go.uber.org/fx"
)

func options() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(config.NewSnowflakeNode),
		db.Module,
		clock.Module,

		// Domain services required by the sweeper
		events.Module,
		audit.Module,
		supportrule.Module,
		budget.Module,
		allocation.Module,

		// No server module
		distlock.Module,
		sweeper.Module,
	)
}

func main() {
	fx.New(options()).Run()
}
