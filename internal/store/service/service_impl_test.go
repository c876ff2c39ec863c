package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/storepulse/internal/store/domain"
	"github.com/smallbiznis/storepulse/internal/store/repository"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func TestStoreServiceListAndGet(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Store{}))
	require.NoError(t, conn.Create(&[]domain.Store{
		{ID: 30, Name: "Harbor", Metadata: datatypes.JSONMap{}},
		{ID: 10, Name: "Alder", Metadata: datatypes.JSONMap{}},
		{ID: 20, Name: "Birch", Metadata: datatypes.JSONMap{}},
	}).Error)

	svc := New(Params{DB: conn, Log: zap.NewNop(), Repo: repository.Provide()})
	ctx := context.Background()

	stores, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 3)
	assert.Equal(t, "Alder", stores[0].Name)
	assert.Equal(t, "Harbor", stores[2].Name)

	got, err := svc.GetByID(ctx, "20")
	require.NoError(t, err)
	assert.Equal(t, "Birch", got.Name)

	_, err = svc.GetByID(ctx, "99")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
