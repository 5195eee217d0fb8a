package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/promotion"
)

type promotionRepository struct {
	db *DB
}

var _ promotion.Repository = (*promotionRepository)(nil)

func NewPromotionRepository(db *DB) *promotionRepository {
	return &promotionRepository{db: db}
}

func copyPromotion(p promotion.Promotion) promotion.Promotion {
	if p.ToClassID != nil {
		p.ToClassID = core.Int64Ptr(*p.ToClassID)
	}
	if p.ToSessionID != nil {
		p.ToSessionID = core.Int64Ptr(*p.ToSessionID)
	}
	if p.ExecutedAt != nil {
		at := *p.ExecutedAt
		p.ExecutedAt = &at
	}
	return p
}

func (repo *promotionRepository) findStudentPromotion(schoolID int64, pan string, sessionID int64) (promotion.Promotion, bool) {
	for _, p := range repo.db.t.promotions {
		if p.SchoolID == schoolID && p.StudentPAN == pan && p.FromSessionID == sessionID {
			return p, true
		}
	}
	return promotion.Promotion{}, false
}

func (repo *promotionRepository) UpsertPromotion(
	_ context.Context,
	p promotion.Promotion,
	_ ...core.DBExecutor,
) (promotion.Promotion, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if existing, ok := repo.findStudentPromotion(p.SchoolID, p.StudentPAN, p.FromSessionID); ok {
		if !existing.IsPending() {
			return promotion.Promotion{}, core.NewArgumentError("promotion of student %s is already %s", p.StudentPAN, existing.Status)
		}
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = repo.db.nextID("promotions", p.ID)
	}
	repo.db.t.promotions[p.ID] = copyPromotion(p)
	return copyPromotion(p), nil
}

func (repo *promotionRepository) GetPromotion(
	_ context.Context,
	schoolID, id int64,
	_ ...core.DBExecutor,
) (promotion.Promotion, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.t.promotions[id]; ok && p.SchoolID == schoolID {
		return copyPromotion(p), nil
	}
	return promotion.Promotion{}, core.NewNotFoundError("promotion %d not found", id)
}

func (repo *promotionRepository) GetStudentPromotion(
	_ context.Context,
	schoolID int64,
	pan string,
	sessionID int64,
	_ ...core.DBExecutor,
) (promotion.Promotion, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.findStudentPromotion(schoolID, pan, sessionID); ok {
		return copyPromotion(p), nil
	}
	return promotion.Promotion{}, core.NewNotFoundError("no promotion for student %s in session %d", pan, sessionID)
}

func (repo *promotionRepository) QueryPromotions(
	_ context.Context,
	filter promotion.Filter,
	_ ...core.DBExecutor,
) ([]promotion.Promotion, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	promos := make([]promotion.Promotion, 0)
	for _, p := range repo.db.t.promotions {
		if (filter.SchoolID != 0 && p.SchoolID != filter.SchoolID) ||
			(filter.FromSessionID != 0 && p.FromSessionID != filter.FromSessionID) ||
			(filter.FromClassID != 0 && p.FromClassID != filter.FromClassID) ||
			(filter.Status != "" && p.Status != filter.Status) {
			continue
		}
		promos = append(promos, copyPromotion(p))
	}
	sort.Slice(promos, func(i, j int) bool { return promos[i].StudentPAN < promos[j].StudentPAN })
	return promos, nil
}

func (repo *promotionRepository) UpdatePromotion(
	_ context.Context,
	p promotion.Promotion,
	_ ...core.DBExecutor,
) (promotion.Promotion, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing, ok := repo.db.t.promotions[p.ID]
	if !ok || existing.SchoolID != p.SchoolID {
		return promotion.Promotion{}, core.NewNotFoundError("promotion %d not found", p.ID)
	}
	repo.db.t.promotions[p.ID] = copyPromotion(p)
	return copyPromotion(p), nil
}

func (repo *promotionRepository) DeletePromotion(_ context.Context, schoolID, id int64, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if p, ok := repo.db.t.promotions[id]; ok && p.SchoolID == schoolID && p.IsPending() {
		delete(repo.db.t.promotions, id)
		return nil
	}
	return core.NewNotFoundError("pending promotion %d not found", id)
}
