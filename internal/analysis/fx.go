package analysis

import (
	"github.com/smallbiznis/storepulse/internal/analysis/repository"
	"github.com/smallbiznis/storepulse/internal/analysis/service"
	"go.uber.org/fx"
)

var Module = fx.Module("analysis.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
