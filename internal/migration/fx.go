package migration

import (
	analysisdomain "github.com/smallbiznis/storepulse/internal/analysis/domain"
	"github.com/smallbiznis/storepulse/internal/config"
	customerdomain "github.com/smallbiznis/storepulse/internal/customer/domain"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	visitdomain "github.com/smallbiznis/storepulse/internal/visit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			log.Info("migration.automigrate", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate creates the schema from the domain models for non-postgres engines.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&storedomain.Store{},
		&customerdomain.Customer{},
		&visitdomain.DailyVisit{},
		&analysisdomain.Run{},
	)
}
