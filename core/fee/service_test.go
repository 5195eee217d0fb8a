package fee_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

type fixture struct {
	academicRepo academic.Repository
	feeRepo      fee.Repository
	school       academic.School
	session      academic.Session
	class        academic.Class
	student      academic.Student
}

func setup(t *testing.T) fixture {
	db := inmemdb.New()
	f := fixture{
		academicRepo: inmemdb.NewAcademicRepository(db),
		feeRepo:      inmemdb.NewFeeRepository(db),
	}
	f.school = testutil.CreateSchool(t, f.academicRepo, "Green Valley")
	f.session = testutil.CreateSession(t, f.academicRepo, f.school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)
	f.class = testutil.CreateClass(t, f.academicRepo, f.school.ID, f.session.ID, "5A", 0)
	f.student = testutil.CreateStudent(t, f.academicRepo, f.school.ID, "PAN001", "Amani", &f.class)
	return f
}

func TestGenerator_GenerateForSession(t *testing.T) {
	ctx := context.Background()

	t.Run("twelve monthly fees", func(t *testing.T) {
		f := setup(t)
		structure := testutil.CreateFeeStructure(t, f.feeRepo, f.class, 500)
		gen := fee.NewGenerator(f.feeRepo, testutil.NewLogger())

		res, err := gen.GenerateForSession(ctx, f.student, f.class, f.session)
		require.NoError(t, err)
		assert.Equal(t, fee.Result{Created: 12}, res)

		fees, err := f.feeRepo.QueryFees(ctx, fee.Filter{SchoolID: f.school.ID, StudentPAN: f.student.PAN})
		require.NoError(t, err)
		require.Len(t, fees, 12)

		month := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
		for i, fe := range fees {
			want := month.AddDate(0, i, 0)
			assert.Equal(t, want.Month(), fe.Month, "fee %d", i)
			assert.Equal(t, want.Year(), fe.Year, "fee %d", i)
			assert.Equal(t, int64(500), fe.Amount, "fee %d", i)
			assert.Equal(t, fee.StatusPending, fe.Status, "fee %d", i)
			assert.Equal(t, time.Date(want.Year(), want.Month(), 10, 0, 0, 0, 0, time.UTC), fe.DueDate, "fee %d", i)
			assert.Equal(t, structure.ID, fe.StructureID, "fee %d", i)
			assert.Equal(t, f.session.ID, fe.SessionID, "fee %d", i)
		}
		assert.Equal(t, time.March, fees[11].Month)
		assert.Equal(t, 2025, fees[11].Year)
	})

	t.Run("repeated generation creates nothing", func(t *testing.T) {
		f := setup(t)
		testutil.CreateFeeStructure(t, f.feeRepo, f.class, 500)
		gen := fee.NewGenerator(f.feeRepo, testutil.NewLogger())

		_, err := gen.GenerateForSession(ctx, f.student, f.class, f.session)
		require.NoError(t, err)
		res, err := gen.GenerateForSession(ctx, f.student, f.class, f.session)
		require.NoError(t, err)
		assert.Equal(t, fee.Result{Skipped: 12}, res)

		fees, err := f.feeRepo.QueryFees(ctx, fee.Filter{StudentPAN: f.student.PAN})
		require.NoError(t, err)
		assert.Len(t, fees, 12)
	})

	t.Run("missing structure", func(t *testing.T) {
		f := setup(t)
		gen := fee.NewGenerator(f.feeRepo, testutil.NewLogger())

		res, err := gen.GenerateForSession(ctx, f.student, f.class, f.session)
		require.NoError(t, err)
		assert.Equal(t, fee.Result{MissingStructure: true}, res)

		fees, err := f.feeRepo.QueryFees(ctx, fee.Filter{StudentPAN: f.student.PAN})
		require.NoError(t, err)
		assert.Empty(t, fees)
	})
}

func TestService_CreateStructure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	other := testutil.CreateSession(t, f.academicRepo, f.school.ID, "2025-2026", "2025-04-01", "2026-03-31", false)
	svc := fee.NewService(f.feeRepo, f.academicRepo)

	st, err := svc.CreateStructure(ctx, f.school.ID, fee.NewStructure{ClassID: f.class.ID, SessionID: f.session.ID, Amount: 600})
	require.NoError(t, err)
	assert.Equal(t, int64(600), st.Amount)
	assert.Equal(t, f.school.ID, st.SchoolID)

	_, err = svc.CreateStructure(ctx, f.school.ID, fee.NewStructure{ClassID: f.class.ID, SessionID: f.session.ID, Amount: 700})
	assert.True(t, core.IsAlreadyExists(err), "duplicate structure: %v", err)

	_, err = svc.CreateStructure(ctx, f.school.ID, fee.NewStructure{ClassID: f.class.ID, SessionID: other.ID, Amount: 700})
	assert.True(t, core.IsArgument(err), "class of another session: %v", err)

	_, err = svc.CreateStructure(ctx, f.school.ID, fee.NewStructure{ClassID: 999, SessionID: f.session.ID, Amount: 700})
	assert.True(t, core.IsNotFound(err), "unknown class: %v", err)
}

func TestNewStructure_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	ns := fee.NewStructure{ClassID: 1, SessionID: 1, Amount: 0}
	assert.NoError(t, ns.Validate(validate))

	ns = fee.NewStructure{ClassID: 1, SessionID: 1, Amount: -1}
	assert.Error(t, ns.Validate(validate))

	ns = fee.NewStructure{Amount: 10}
	assert.Error(t, ns.Validate(validate))
}

func TestService_MarkOverdue(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateFeeStructure(t, f.feeRepo, f.class, 500)
	_, err := fee.NewGenerator(f.feeRepo, testutil.NewLogger()).GenerateForSession(ctx, f.student, f.class, f.session)
	require.NoError(t, err)
	svc := fee.NewService(f.feeRepo, f.academicRepo)

	// April, May & June are past due
	n, err := svc.MarkOverdue(ctx, time.Date(2024, time.June, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = svc.MarkOverdue(ctx, time.Date(2024, time.June, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	fees, err := svc.QueryStudentFees(ctx, f.school.ID, f.student.PAN, f.session.ID)
	require.NoError(t, err)
	require.Len(t, fees, 12)
	assert.Equal(t, fee.StatusOverdue, fees[2].Status)
	assert.Equal(t, fee.StatusPending, fees[3].Status)
}
