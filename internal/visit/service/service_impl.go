package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/cohort"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/timewindow"
	"github.com/smallbiznis/storepulse/internal/visit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Clock  clock.Clock
	Policy *config.AnalysisPolicyHolder
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	clock  clock.Clock
	policy *config.AnalysisPolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("visit.service"),
		repo:   p.Repo,
		clock:  p.Clock,
		policy: p.Policy,
	}
}

func (s *Service) VisitGraph(ctx context.Context, storeID, customerID, mode string) (domain.VisitGraph, error) {
	store, err := parseID(storeID, domain.ErrInvalidStore)
	if err != nil {
		return domain.VisitGraph{}, err
	}

	var customer snowflake.ID
	if strings.TrimSpace(customerID) != "" {
		customer, err = parseID(customerID, domain.ErrInvalidCustomer)
		if err != nil {
			return domain.VisitGraph{}, err
		}
	}

	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = domain.GraphModeMonth
	}

	var granularity timewindow.Granularity
	switch mode {
	case domain.GraphModeMonth:
		granularity = timewindow.MonthInclusive
	case domain.GraphModeWeek:
		granularity = timewindow.Week
	default:
		return domain.VisitGraph{}, domain.ErrInvalidMode
	}

	today := timewindow.Truncate(s.clock.Now().In(s.policy.Get().Location()))
	windows := timewindow.MustGenerate(today, granularity, domain.GraphWindows(mode))
	start, end, _ := timewindow.Span(windows)

	var visits []cohort.Visit
	if customer != 0 {
		visits, err = s.repo.FindByCustomerAndRange(ctx, s.db, store, customer, start, end)
	} else {
		visits, err = s.repo.FindByStoreAndRange(ctx, s.db, store, start, end)
	}
	if err != nil {
		return domain.VisitGraph{}, err
	}

	buckets := cohort.Bucket(visits, windows)
	points := make([]domain.GraphPoint, len(windows))
	for i, w := range windows {
		points[i] = domain.GraphPoint{Label: w.Label, Amount: buckets.WindowAmounts[i]}
	}
	for _, counts := range buckets.Counts {
		for i, c := range counts {
			points[i].VisitCount += c
		}
	}

	s.log.Debug("visit.graph",
		zap.String("store_id", store.String()),
		zap.String("mode", mode),
		zap.Int("visits", buckets.Bucketed),
	)

	return domain.VisitGraph{Mode: mode, Points: points}, nil
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}
