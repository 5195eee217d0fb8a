package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fee"
)

type feeRepository struct {
	db *DB
}

var _ fee.Repository = (*feeRepository)(nil)

func NewFeeRepository(db *DB) *feeRepository {
	return &feeRepository{db: db}
}

func (repo *feeRepository) GetStructure(
	_ context.Context,
	schoolID, classID, sessionID int64,
	_ ...core.DBExecutor,
) (fee.Structure, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, st := range repo.db.t.structures {
		if st.SchoolID == schoolID && st.ClassID == classID && st.SessionID == sessionID {
			return st, nil
		}
	}
	return fee.Structure{}, core.NewNotFoundError("no fee structure for class %d in session %d", classID, sessionID)
}

func (repo *feeRepository) CreateStructure(_ context.Context, st fee.Structure, _ ...core.DBExecutor) (fee.Structure, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range repo.db.t.structures {
		if s.SchoolID == st.SchoolID && s.ClassID == st.ClassID && s.SessionID == st.SessionID {
			return fee.Structure{}, core.NewAlreadyExistsError("class %d already has a fee structure for session %d", st.ClassID, st.SessionID)
		}
	}
	st.ID = repo.db.nextID("fee_structures", st.ID)
	repo.db.t.structures[st.ID] = st
	return st, nil
}

func (repo *feeRepository) CreateFeeIfNotExists(_ context.Context, f fee.Fee, _ ...core.DBExecutor) (fee.Fee, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.t.fees {
		if existing.SchoolID == f.SchoolID && existing.StudentPAN == f.StudentPAN &&
			existing.Month == f.Month && existing.Year == f.Year && existing.SessionID == f.SessionID {
			return existing, false, nil
		}
	}
	f.ID = repo.db.nextID("fees", f.ID)
	repo.db.t.fees[f.ID] = f
	return f, true, nil
}

func (repo *feeRepository) QueryFees(_ context.Context, filter fee.Filter, _ ...core.DBExecutor) ([]fee.Fee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	fees := make([]fee.Fee, 0)
	for _, f := range repo.db.t.fees {
		if (filter.SchoolID != 0 && f.SchoolID != filter.SchoolID) ||
			(filter.StudentPAN != "" && f.StudentPAN != filter.StudentPAN) ||
			(filter.SessionID != 0 && f.SessionID != filter.SessionID) ||
			(filter.Status != "" && f.Status != filter.Status) {
			continue
		}
		fees = append(fees, f)
	}
	sort.Slice(fees, func(i, j int) bool {
		if !fees[i].DueDate.Equal(fees[j].DueDate) {
			return fees[i].DueDate.Before(fees[j].DueDate)
		}
		return fees[i].ID < fees[j].ID
	})
	return fees, nil
}

func (repo *feeRepository) MarkOverdue(_ context.Context, asOf time.Time, _ ...core.DBExecutor) (int64, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var count int64
	for id, f := range repo.db.t.fees {
		if f.Status == fee.StatusPending && f.DueDate.Before(asOf) {
			f.Status = fee.StatusOverdue
			repo.db.t.fees[id] = f
			count++
		}
	}
	return count, nil
}
