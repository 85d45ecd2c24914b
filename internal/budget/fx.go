package budget

import (
	"github.com/smallbiznis/sponsorship/internal/budget/service"
	"go.uber.org/fx"
)

var Module = fx.Module("budget.ledger",
	fx.Provide(service.New),
)
