package arena

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/model"
)

const maxPageSize = 100

// HistoryFilter narrows History results.
type HistoryFilter struct {
	// Pokemon matches either side.
	Pokemon  string
	ClientID *int64
	Limit    int
	Offset   int
}

// History returns stored battles newest first, plus the total match count.
func (svc *Service) History(ctx context.Context, f HistoryFilter) ([]model.BattleSummary, int64, error) {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	filter := func(db *gorm.DB) *gorm.DB {
		if name := normalize(f.Pokemon); name != "" {
			db = db.Where("pokemon1 = ? OR pokemon2 = ?", name, name)
		}
		if f.ClientID != nil {
			db = db.Where("client_id = ?", *f.ClientID)
		}
		return db
	}

	var total int64
	if err := svc.db.WithContext(ctx).Model(&model.BattleRecord{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var recs []model.BattleRecord
	err := svc.db.WithContext(ctx).Scopes(filter).
		Order("created_at DESC").Order("id").
		Limit(f.Limit).Offset(f.Offset).
		Omit("log", "final").
		Find(&recs).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.BattleSummary, len(recs))
	for i := range recs {
		out[i] = recs[i].Summary()
	}
	return out, total, nil
}

// Get returns one stored battle including its log.
func (svc *Service) Get(ctx context.Context, id string) (*model.BattleRecord, error) {
	var rec model.BattleRecord
	err := svc.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBattleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Prune deletes battles older than maxAge and reports how many were removed.
func (svc *Service) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := svc.now().Add(-maxAge)
	res := svc.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.BattleRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		svc.logger.Info("pruned battle history",
			zap.Int64("deleted", res.RowsAffected), zap.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}

// Recent returns up to n of the latest battle summaries from the cache feed,
// falling back to the database when no cache is configured.
func (svc *Service) Recent(ctx context.Context, n int) ([]model.BattleSummary, error) {
	if n <= 0 || n > svc.cfg.RecentSize {
		n = svc.cfg.RecentSize
	}
	if svc.cache == nil {
		list, _, err := svc.History(ctx, HistoryFilter{Limit: n})
		return list, err
	}
	raw, err := svc.cache.LRange(ctx, cache.KeyRecentBattles, 0, int64(n-1))
	if err != nil {
		return nil, err
	}
	out := make([]model.BattleSummary, 0, len(raw))
	for _, item := range raw {
		var s model.BattleSummary
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// LeaderboardEntry is one row of the win leaderboard.
type LeaderboardEntry struct {
	Pokemon string `json:"pokemon"`
	Wins    int64  `json:"wins"`
}

// Leaderboard returns the n Pokémon with the most wins.
func (svc *Service) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if n <= 0 || n > maxPageSize {
		n = 10
	}
	if svc.cache == nil {
		return svc.leaderboardFromDB(ctx, n)
	}
	names, err := svc.cache.ZRevRange(ctx, cache.KeyWinLeaderboard, 0, int64(n-1))
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(names))
	for _, name := range names {
		score, err := svc.cache.ZScore(ctx, cache.KeyWinLeaderboard, name)
		if err != nil {
			continue
		}
		out = append(out, LeaderboardEntry{Pokemon: name, Wins: int64(score)})
	}
	return out, nil
}

func (svc *Service) leaderboardFromDB(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	var rows []LeaderboardEntry
	err := svc.db.WithContext(ctx).Model(&model.BattleRecord{}).
		Select("winner AS pokemon, COUNT(*) AS wins").
		Where("winner_side IN ?", []string{"side_a", "side_b"}).
		Group("winner").
		Order("wins DESC").Order("pokemon DESC").
		Limit(n).
		Scan(&rows).Error
	return rows, err
}
