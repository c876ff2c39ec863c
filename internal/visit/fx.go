package visit

import (
	"github.com/smallbiznis/storepulse/internal/visit/repository"
	"github.com/smallbiznis/storepulse/internal/visit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("visit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
