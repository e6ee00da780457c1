package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"auctionharvest/internal/models"
	"auctionharvest/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertAuctionItem inserts the item or refreshes the stored row keyed by lot
// number. A returning row keeps its created_at; every refresh bumps
// updated_at and stores the availability the adapter derived.
func (s *Store) UpsertAuctionItem(ctx context.Context, item *models.AuctionItem) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	if strings.TrimSpace(item.LotNumber) == "" {
		return false, nil
	}

	var existing models.AuctionItem
	err := s.db.WithContext(ctx).
		Model(&models.AuctionItem{}).
		Where("lot_number = ?", item.LotNumber).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return true, s.db.WithContext(ctx).Create(item).Error
	}
	if err != nil {
		return false, err
	}

	item.ID = existing.ID
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	return false, s.db.WithContext(ctx).
		Model(&models.AuctionItem{}).
		Where("id = ?", existing.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(item).Error
}

func (s *Store) GetAuctionItemByLotNumber(ctx context.Context, lotNumber string) (*models.AuctionItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	lotNumber = strings.TrimSpace(lotNumber)
	if lotNumber == "" {
		return nil, nil
	}
	var item models.AuctionItem
	err := s.db.WithContext(ctx).First(&item, "lot_number = ?", lotNumber).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAuctionItems(ctx context.Context, params repository.ListAuctionItemsParams) ([]models.AuctionItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyAuctionItemFilters(s.db.WithContext(ctx).Model(&models.AuctionItem{}), params)
	query = applyAuctionItemOrder(query, params.OrderBy, params.Asc)
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.AuctionItem
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAuctionItems(ctx context.Context, params repository.ListAuctionItemsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyAuctionItemFilters(s.db.WithContext(ctx).Model(&models.AuctionItem{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// MarkUnavailable closes every item of the source whose lot number is absent
// from keepLotNumbers and returns the number of rows it flipped.
func (s *Store) MarkUnavailable(ctx context.Context, source string, keepLotNumbers []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.AuctionItem{}).
		Where("source = ?", source).
		Where("is_available = ?", true)
	keep := cleanStrings(keepLotNumbers)
	if len(keep) > 0 {
		query = query.Where("lot_number NOT IN ?", keep)
	}
	res := query.Updates(map[string]any{
		"is_available": false,
		"status":       models.StatusClosed,
		"updated_at":   time.Now().UTC(),
	})
	return res.RowsAffected, res.Error
}

// DeleteClosedItems removes closed and expired items last touched before the
// cutoff. An empty source deletes across all sources.
func (s *Store) DeleteClosedItems(ctx context.Context, source string, closedBefore time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if closedBefore.IsZero() {
		closedBefore = time.Now().UTC()
	}
	query := s.db.WithContext(ctx).
		Where("status IN ?", []string{models.StatusClosed, models.StatusExpired}).
		Where("updated_at <= ?", closedBefore)
	if source = strings.TrimSpace(source); source != "" {
		query = query.Where("source = ?", source)
	}
	res := query.Delete(&models.AuctionItem{})
	return res.RowsAffected, res.Error
}

func (s *Store) AuctionStats(ctx context.Context) (repository.Stats, error) {
	stats := repository.Stats{
		BySource:   map[string]int64{},
		ByType:     map[string]int64{},
		ByStatus:   map[string]int64{},
		LastScrape: map[string]*time.Time{},
	}
	if s == nil || s.db == nil {
		return stats, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.AuctionItem{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).
		Model(&models.AuctionItem{}).
		Where("is_available = ?", true).
		Count(&stats.Available).Error; err != nil {
		return stats, err
	}

	type bucket struct {
		Key   string
		Count int64
	}
	groups := []struct {
		column string
		dest   map[string]int64
	}{
		{"source", stats.BySource},
		{"asset_type", stats.ByType},
		{"status", stats.ByStatus},
	}
	for _, g := range groups {
		var rows []bucket
		if err := s.db.WithContext(ctx).
			Model(&models.AuctionItem{}).
			Select(g.column + " AS key, COUNT(*) AS count").
			Group(g.column).
			Scan(&rows).Error; err != nil {
			return stats, err
		}
		for _, row := range rows {
			g.dest[row.Key] = row.Count
		}
	}

	states, err := s.ListScrapeStates(ctx)
	if err != nil {
		return stats, err
	}
	for _, st := range states {
		stats.LastScrape[st.Source] = st.LastSuccessAt
	}
	return stats, nil
}

func (s *Store) GetScrapeState(ctx context.Context, source string) (*models.ScrapeState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.ScrapeState
	err := s.db.WithContext(ctx).First(&state, "source = ?", source).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveScrapeState(ctx context.Context, state *models.ScrapeState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	if strings.TrimSpace(state.Source) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

func (s *Store) ListScrapeStates(ctx context.Context) ([]models.ScrapeState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var states []models.ScrapeState
	if err := s.db.WithContext(ctx).Order("source asc").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (s *Store) InsertComment(ctx context.Context, item *models.Comment) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListCommentsByLotNumber(ctx context.Context, lotNumber string) ([]models.Comment, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	lotNumber = strings.TrimSpace(lotNumber)
	if lotNumber == "" {
		return nil, nil
	}
	var items []models.Comment
	if err := s.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("lot_number = ?", lotNumber).
		Order("created_at desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{})
	return res.RowsAffected, res.Error
}

func applyAuctionItemFilters(query *gorm.DB, params repository.ListAuctionItemsParams) *gorm.DB {
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.TrimSpace(*params.Source))
	}
	if types := cleanStrings(params.AssetTypes); len(types) > 0 {
		query = query.Where("asset_type IN ?", types)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		status := strings.TrimSpace(*params.Status)
		query = query.Where("status = ?", status)
		if status == models.StatusActive {
			// A stored active status can lag one scrape cycle behind
			// the real closing time; never serve it past the deadline.
			query = query.Where("(closing_date IS NULL OR closing_date >= ?)", filterNow(params))
		}
	}
	if params.ActiveOnly {
		query = query.Where("is_available = ?", true).
			Where("(closing_date IS NULL OR closing_date >= ?)", filterNow(params))
	}
	if params.Search != nil && strings.TrimSpace(*params.Search) != "" {
		pattern := "%" + strings.TrimSpace(*params.Search) + "%"
		query = query.Where(
			"(title ILIKE ? OR description ILIKE ? OR city ILIKE ? OR country ILIKE ? OR region ILIKE ? OR agency ILIKE ?)",
			pattern, pattern, pattern, pattern, pattern, pattern,
		)
	}
	if params.MaxBid != nil && *params.MaxBid >= 0 {
		query = query.Where("current_bid <= ?", *params.MaxBid)
	}
	if params.Country != nil && strings.TrimSpace(*params.Country) != "" {
		query = query.Where("country ILIKE ?", strings.TrimSpace(*params.Country))
	}
	return query
}

func filterNow(params repository.ListAuctionItemsParams) time.Time {
	if !params.Now.IsZero() {
		return params.Now
	}
	return time.Now().UTC()
}

// applyAuctionItemOrder defaults to closing date ascending with null closing
// dates sorted last, so items closing soonest lead the listing.
func applyAuctionItemOrder(query *gorm.DB, orderBy string, asc *bool) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		return query.Order("closing_date ASC NULLS LAST")
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
