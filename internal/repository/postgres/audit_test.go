package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
)

var auditColumns = []string{
	"id", "doctor_id", "appointment_id", "from_status", "to_status",
	"outcome", "error", "request_id", "created_at",
}

func setupAuditRepository(t *testing.T) (repository.TransitionAuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAuditRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestAuditRepository_Create(t *testing.T) {
	repo, mock := setupAuditRepository(t)

	entry := &model.TransitionAudit{
		ID:            uuid.New(),
		DoctorID:      "42",
		AppointmentID: 17,
		FromStatus:    "PENDING",
		ToStatus:      "APPROVED",
		Outcome:       model.AuditOutcomeSucceeded,
		RequestID:     "req-1",
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO appointment_transition_audits").
		WithArgs(
			entry.ID,
			entry.DoctorID,
			entry.AppointmentID,
			entry.FromStatus,
			entry.ToStatus,
			entry.Outcome,
			entry.Error,
			entry.RequestID,
			entry.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_CreateError(t *testing.T) {
	repo, mock := setupAuditRepository(t)

	mock.ExpectExec("INSERT INTO appointment_transition_audits").
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &model.TransitionAudit{ID: uuid.New()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create transition audit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_List(t *testing.T) {
	repo, mock := setupAuditRepository(t)

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	created := since.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("AND doctor_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3")).
		WithArgs("42", since, 25).
		WillReturnRows(sqlmock.NewRows(auditColumns).
			AddRow(id.String(), "42", int64(17), "PENDING", "REJECTED", "failed", "backend returned 500", "req-2", created))

	entries, err := repo.List(context.Background(), model.AuditFilters{DoctorID: "42", Since: since, Limit: 25})

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, int64(17), entries[0].AppointmentID)
	assert.Equal(t, "REJECTED", entries[0].ToStatus)
	assert.Equal(t, "backend returned 500", entries[0].Error)
	assert.True(t, entries[0].CreatedAt.Equal(created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_ListDefaults(t *testing.T) {
	repo, mock := setupAuditRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("AND appointment_id = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs(int64(9), defaultAuditListLimit).
		WillReturnRows(sqlmock.NewRows(auditColumns))

	entries, err := repo.List(context.Background(), model.AuditFilters{AppointmentID: 9})

	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Cleanup(t *testing.T) {
	repo, mock := setupAuditRepository(t)
	before := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM appointment_transition_audits").
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.Cleanup(context.Background(), before)

	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS appointment_transition_audits").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), sqlx.NewDb(db, "postgres")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
