package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/customer/domain"
	"github.com/smallbiznis/storepulse/internal/timewindow"
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
		log:    p.Log.Named("customer.service"),
		repo:   p.Repo,
		clock:  p.Clock,
		policy: p.Policy,
	}
}

func (s *Service) ListByStore(ctx context.Context, storeID, segment string) ([]domain.CustomerView, error) {
	id, err := s.parseStoreID(storeID)
	if err != nil {
		return nil, err
	}
	filter, err := domain.ParseListFilter(segment)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.FindByStore(ctx, s.db, id, filter)
	if err != nil {
		return nil, err
	}

	today := s.today()
	views := make([]domain.CustomerView, 0, len(items))
	for _, item := range items {
		views = append(views, newView(item, today))
	}
	return views, nil
}

func (s *Service) GetDetail(ctx context.Context, storeID, customerID string) (domain.CustomerView, error) {
	id, err := s.parseStoreID(storeID)
	if err != nil {
		return domain.CustomerView{}, err
	}
	cid, err := snowflake.ParseString(strings.TrimSpace(customerID))
	if err != nil || cid <= 0 {
		return domain.CustomerView{}, domain.ErrInvalidCustomer
	}

	item, err := s.repo.FindByID(ctx, s.db, id, cid)
	if err != nil {
		return domain.CustomerView{}, err
	}
	if item == nil {
		return domain.CustomerView{}, domain.ErrNotFound
	}
	return newView(*item, s.today()), nil
}

func (s *Service) today() time.Time {
	now := s.clock.Now()
	if s.policy != nil {
		now = now.In(s.policy.Get().Location())
	}
	return timewindow.Truncate(now)
}

func newView(item domain.Customer, today time.Time) domain.CustomerView {
	view := domain.CustomerView{
		Customer:       item,
		ChurnRiskLevel: item.Segment.ChurnRiskLevel(),
	}
	if item.LastVisitDate != nil && !item.LastVisitDate.IsZero() {
		days := max(timewindow.DaysBetween(*item.LastVisitDate, today), 0)
		view.DaysSinceLastVisit = &days
	}
	return view
}

func (s *Service) DeclinedLoyalSummary(ctx context.Context, storeID string) (domain.DeclinedLoyalSummary, error) {
	id, err := s.parseStoreID(storeID)
	if err != nil {
		return domain.DeclinedLoyalSummary{}, err
	}

	counts, err := s.repo.CountBySegments(ctx, s.db, id, []domain.Segment{
		domain.SegmentLoyal,
		domain.SegmentAtRiskLoyal,
	})
	if err != nil {
		return domain.DeclinedLoyalSummary{}, err
	}

	loyal := counts[domain.SegmentLoyal]
	atRisk := counts[domain.SegmentAtRiskLoyal]
	return domain.DeclinedLoyalSummary{
		LoyalCount:   loyal,
		AtRiskCount:  atRisk,
		DeclineRatio: DeclineRatio(loyal, atRisk),
	}, nil
}

// DeclineRatio is the at-risk share of all loyal-type customers as a whole percentage.
func DeclineRatio(loyal, atRisk int64) int {
	total := loyal + atRisk
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(atRisk)*100/float64(total) + 0.5))
}

func (s *Service) parseStoreID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidStore
	}
	return id, nil
}
