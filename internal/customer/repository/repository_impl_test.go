package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/storepulse/internal/customer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dryRunDB(t *testing.T, dialector gorm.Dialector) (*gorm.DB, *[]string) {
	t.Helper()
	conn, err := gorm.Open(dialector, &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)

	var captured []string
	err = conn.Callback().Raw().After("gorm:raw").Register("test:capture_sql", func(tx *gorm.DB) {
		captured = append(captured, tx.Statement.SQL.String())
	})
	require.NoError(t, err)
	return conn, &captured
}

func TestUpdateSegmentsRendersPortableSQL(t *testing.T) {
	dialects := map[string]gorm.Dialector{
		"postgres": postgres.New(postgres.Config{DSN: "host=127.0.0.1 user=storepulse dbname=storepulse sslmode=disable"}),
		"mysql": mysql.New(mysql.Config{
			DSN:                       "storepulse:secret@tcp(127.0.0.1:3306)/storepulse?parseTime=true",
			SkipInitializeWithVersion: true,
		}),
		"sqlite": sqlite.Open("file::memory:"),
	}

	updates := []domain.SegmentUpdate{
		{CustomerID: 1, Segment: domain.SegmentLoyal, LoyaltyScore: 96},
		{CustomerID: 2, Segment: domain.SegmentChurnRisk, LoyaltyScore: 12},
	}
	now := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

	for name, dialector := range dialects {
		t.Run(name, func(t *testing.T) {
			conn, captured := dryRunDB(t, dialector)

			_, err := Provide().UpdateSegments(context.Background(), conn, 7, updates, now)
			require.NoError(t, err)
			require.Len(t, *captured, 1)

			sql := (*captured)[0]
			assert.Contains(t, sql, "UPDATE customers SET segment = CASE id WHEN")
			assert.Contains(t, sql, "ELSE loyalty_score END")
			assert.NotContains(t, sql, "CAST(")
		})
	}
}
