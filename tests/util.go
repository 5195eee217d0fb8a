// Package testutil holds the fixtures shared by the tests.
package testutil

import (
	"context"
	"database/sql"
	"io/ioutil"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/user"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
)

const DateLayout = "2006-01-02"

// NewConfig returns a configuration for tests, independent from the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Academia",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		DefaultFromEmail: mail.Address{Name: "Academia", Address: "noreply@academia.test"},
		FrontendBaseURL:  "http://localhost:3000",
		Server: core.ServerConfig{
			Host:                      ":0",
			RequestTimeout:            30 * time.Second,
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
		Scheduler: core.SchedulerConfig{FeeOverdueSchedule: "@daily"},
	}
}

// NewLogger returns a logger that reports nowhere. Set TEST_VERBOSE to print the log lines.
func NewLogger() core.Logger {
	out := ioutil.Discard
	if os.Getenv("TEST_VERBOSE") != "" {
		out = os.Stdout
	}
	logger := logsvc.NewRollbarLogger(log.New(out, "TEST : ", log.LstdFlags), NewConfig())
	logger.Enable(false)
	return logger
}

// Date parses a YYYY-MM-DD date (UTC).
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		t.Fatalf("Date(%q) failed: %v", s, err)
	}
	return d
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID int64,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd == "" {
		pwd = "Pa$$w0rd!"
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateSchool(t *testing.T, repo academic.Repository, name string) academic.School {
	t.Helper()
	school, err := repo.CreateSchool(context.Background(), academic.School{Name: name})
	if err != nil {
		t.Fatalf("createSchool() failed: %v", err)
	}
	return school
}

// CreateSession creates a session with dates formatted as YYYY-MM-DD.
func CreateSession(t *testing.T, repo academic.Repository, schoolID int64, name, start, end string, active bool) academic.Session {
	t.Helper()
	session, err := repo.CreateSession(context.Background(), academic.Session{
		SchoolID:  schoolID,
		Name:      name,
		StartDate: Date(t, start),
		EndDate:   Date(t, end),
		Active:    active,
	})
	if err != nil {
		t.Fatalf("createSession() failed: %v", err)
	}
	return session
}

func CreateClass(t *testing.T, repo academic.Repository, schoolID, sessionID int64, name string, teacherID int64) academic.Class {
	t.Helper()
	class, err := repo.CreateClass(context.Background(), academic.Class{
		SchoolID:       schoolID,
		SessionID:      sessionID,
		Name:           name,
		ClassTeacherID: teacherID,
	})
	if err != nil {
		t.Fatalf("createClass() failed: %v", err)
	}
	return class
}

// CreateStudent creates an ACTIVE student in the class, or without class when class is nil.
func CreateStudent(t *testing.T, repo academic.Repository, schoolID int64, pan, name string, class *academic.Class) academic.Student {
	t.Helper()
	student := academic.Student{
		PAN:      pan,
		SchoolID: schoolID,
		Name:     name,
		Status:   academic.StatusActive,
	}
	if class != nil {
		student.ClassID = core.Int64Ptr(class.ID)
		student.SessionID = class.SessionID
	}
	student, err := repo.CreateStudent(context.Background(), student)
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return student
}

func CreateFeeStructure(t *testing.T, repo fee.Repository, class academic.Class, amount int64) fee.Structure {
	t.Helper()
	structure, err := repo.CreateStructure(context.Background(), fee.Structure{
		SchoolID:  class.SchoolID,
		ClassID:   class.ID,
		SessionID: class.SessionID,
		Amount:    amount,
	})
	if err != nil {
		t.Fatalf("createFeeStructure() failed: %v", err)
	}
	return structure
}

// PrepareDB opens the PostgreSQL database of TEST_DATABASE_URL, migrates it and empties it.
// The test is skipped when TEST_DATABASE_URL is not set.
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE promotions, fees, fee_structures, enrollments, students, classes, sessions, users, schools
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("resetting test database: %v", err)
	}
}
