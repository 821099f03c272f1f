package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/ports"
)

const (
	dashboardCacheSize = 512
	dashboardCacheTTL  = 5 * time.Minute
)

// CategorySummary is the dashboard's per-category view of one period.
type CategorySummary struct {
	Total      core.Money
	Categories []core.CategoryTotal
}

// DashboardService computes aggregates for the dashboard and caches them per
// owner until the owner's next mutation.
type DashboardService struct {
	store  ports.ExpenseStore
	loc    *time.Location
	logger *log.Logger
	now    func() time.Time

	summaries *cache.LRUCache[CategorySummary]
	details   *cache.LRUCache[core.CategoryDetail]
	options   *cache.LRUCache[[]string]
	years     *cache.LRUCache[[]int]

	// gens counts invalidations per owner; a fill computed under an older
	// generation is not cached.
	genMu sync.Mutex
	gens  map[string]uint64
}

func NewDashboardService(store ports.ExpenseStore, loc *time.Location, logger *log.Logger) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &DashboardService{
		store:     store,
		loc:       loc,
		logger:    logger.WithComponent(log.ComponentDashboard),
		now:       time.Now,
		summaries: cache.NewLRUCache[CategorySummary](dashboardCacheSize, dashboardCacheTTL),
		details:   cache.NewLRUCache[core.CategoryDetail](dashboardCacheSize, dashboardCacheTTL),
		options:   cache.NewLRUCache[[]string](dashboardCacheSize, dashboardCacheTTL),
		years:     cache.NewLRUCache[[]int](dashboardCacheSize, dashboardCacheTTL),
		gens:      make(map[string]uint64),
	}
}

// RegisterCaches hands the service's caches to m for periodic expiry.
func (s *DashboardService) RegisterCaches(m *cache.Manager) {
	m.Register(s.summaries)
	m.Register(s.details)
	m.Register(s.options)
	m.Register(s.years)
}

// Invalidate drops every cached aggregate of ownerID.
func (s *DashboardService) Invalidate(ownerID string) {
	s.genMu.Lock()
	s.gens[ownerID]++
	s.genMu.Unlock()

	prefix := cache.OwnerPrefix(ownerID)
	n := s.summaries.DeletePrefix(prefix) +
		s.details.DeletePrefix(prefix) +
		s.options.DeletePrefix(prefix) +
		s.years.DeletePrefix(prefix)
	if n > 0 {
		s.logger.Debug("Dashboard cache invalidated", log.FieldUserID, ownerID, log.FieldCount, n)
	}
}

func (s *DashboardService) Location() *time.Location { return s.loc }

func (s *DashboardService) generation(ownerID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[ownerID]
}

// fill caches v unless ownerID was invalidated after gen was read.
func fill[V any](s *DashboardService, c *cache.LRUCache[V], ownerID string, gen uint64, key string, v V) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[ownerID] != gen {
		s.logger.Debug("Dropped stale dashboard fill", log.FieldUserID, ownerID)
		return
	}
	c.Set(key, v)
}

// CategoryTotals sums the owner's expenses per category inside p, largest first.
func (s *DashboardService) CategoryTotals(ctx context.Context, ownerID string, p core.Period) (CategorySummary, error) {
	p.Location = s.loc
	if err := p.Validate(); err != nil {
		return CategorySummary{}, err
	}
	key := cache.OwnerKey(ownerID, "totals", strconv.Itoa(p.Year), strconv.Itoa(p.Month))
	if v, ok := s.summaries.Get(key); ok {
		return v, nil
	}
	gen := s.generation(ownerID)

	var from, to *time.Time
	if f, t, ok := p.Bounds(); ok {
		from, to = &f, &t
	}
	expenses, err := s.store.ListExpenses(ctx, ownerID, from, to)
	if err != nil {
		return CategorySummary{}, fmt.Errorf("list expenses: %w", err)
	}

	totals := core.AggregateByCategory(expenses, p)
	slices.SortStableFunc(totals, func(a, b core.CategoryTotal) int {
		return cmp.Compare(b.Total.Cents, a.Total.Cents)
	})
	summary := CategorySummary{Total: core.GrandTotal(totals), Categories: totals}
	fill(s, s.summaries, ownerID, gen, key, summary)
	return summary, nil
}

// CategoryDetail returns the breakdown of one category over year (0 = all years).
func (s *DashboardService) CategoryDetail(ctx context.Context, ownerID, category string, year int) (core.CategoryDetail, error) {
	if category == "" {
		return core.CategoryDetail{}, core.ErrEmptyCategory
	}
	p := core.Period{Year: year, Location: s.loc}
	if err := p.Validate(); err != nil {
		return core.CategoryDetail{}, err
	}
	key := cache.OwnerKey(ownerID, "detail", category, strconv.Itoa(year))
	if v, ok := s.details.Get(key); ok {
		return v, nil
	}
	gen := s.generation(ownerID)

	var from, to *time.Time
	if f, t, ok := p.Bounds(); ok {
		from, to = &f, &t
	}
	expenses, err := s.store.ListByCategory(ctx, ownerID, category, from, to)
	if err != nil {
		return core.CategoryDetail{}, fmt.Errorf("list category: %w", err)
	}
	detail := core.BuildCategoryDetail(expenses, category, year, s.loc)
	fill(s, s.details, ownerID, gen, key, detail)
	return detail, nil
}

// Categories lists the owner's distinct categories in alphabetical order.
func (s *DashboardService) Categories(ctx context.Context, ownerID string) ([]string, error) {
	key := cache.OwnerKey(ownerID, "categories")
	if v, ok := s.options.Get(key); ok {
		return v, nil
	}
	gen := s.generation(ownerID)
	expenses, err := s.store.ListExpenses(ctx, ownerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	cats := core.DistinctCategories(expenses)
	slices.Sort(cats)
	fill(s, s.options, ownerID, gen, key, cats)
	return cats, nil
}

// Years lists every year from the oldest to the newest expense, or just the
// current year when the owner has none.
func (s *DashboardService) Years(ctx context.Context, ownerID string) ([]int, error) {
	key := cache.OwnerKey(ownerID, "years")
	if v, ok := s.years.Get(key); ok {
		return v, nil
	}
	gen := s.generation(ownerID)
	expenses, err := s.store.ListExpenses(ctx, ownerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	years := core.YearSpan(expenses, s.loc)
	if len(years) == 0 {
		years = []int{s.now().In(s.loc).Year()}
	}
	fill(s, s.years, ownerID, gen, key, years)
	return years, nil
}
