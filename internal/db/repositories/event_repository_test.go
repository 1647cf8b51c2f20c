package repositories

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/medgate/medgate/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newEventRepo(t *testing.T) (*EventRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEventRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var eventCols = []string{
	"principal_id", "method", "endpoint", "path", "client_ip",
	"date", "time", "resp_time", "status_code",
}

func sampleEvent(status int) *models.TelemetryEvent {
	respTime := 0.042
	return &models.TelemetryEvent{
		PrincipalID: "principal-1",
		Method:      "GET",
		Endpoint:    "/api/v1/patients/:id",
		Path:        "/api/v1/patients/p-1",
		ClientIP:    "10.1.2.3",
		Date:        "2026-08-29",
		Time:        "14:03:11",
		RespTime:    &respTime,
		StatusCode:  status,
	}
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

func TestRecord_SuccessEventIncrementsSuccessCounter(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO request_count").
		WithArgs("principal-1", 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Record(context.Background(), sampleEvent(200)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecord_ClientErrorIncrementsErrorCounter(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO request_count").
		WithArgs("principal-1", 0, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 404 is an error class even though the request was handled.
	if err := repo.Record(context.Background(), sampleEvent(404)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecord_RedirectCountsAsSuccess(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO request_count").
		WithArgs("principal-1", 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Record(context.Background(), sampleEvent(302)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecord_CounterFailureRollsBackLogInsert(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO request_count").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if err := repo.Record(context.Background(), sampleEvent(200)); err == nil {
		t.Fatal("expected error, got nil")
	}
	// The rollback expectation is the point: the log row must not survive
	// a failed counter update.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecord_LogInsertFailureRollsBack(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_logs").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if err := repo.Record(context.Background(), sampleEvent(200)); err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// GetRecent
// ---------------------------------------------------------------------------

func TestGetRecent_ReturnsNewestFirst(t *testing.T) {
	repo, mock := newEventRepo(t)

	rows := sqlmock.NewRows(eventCols).
		AddRow("principal-1", "GET", "/api/v1/patients", "/api/v1/patients", "10.1.2.3",
			"2026-08-29", "14:05:00", 0.03, 200).
		AddRow("principal-1", "POST", "/api/v1/patients", "/api/v1/patients", "10.1.2.3",
			"2026-08-29", "14:04:00", 0.05, 201)
	mock.ExpectQuery("SELECT.*FROM api_logs.*ORDER BY date DESC, time DESC").
		WithArgs("principal-1", RecentLimit).
		WillReturnRows(rows)

	events, err := repo.GetRecent(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Time != "14:05:00" {
		t.Errorf("first event time = %q, want the newest", events[0].Time)
	}
}

func TestGetRecent_EmptyHistory(t *testing.T) {
	repo, mock := newEventRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_logs").
		WithArgs("principal-1", RecentLimit).
		WillReturnRows(sqlmock.NewRows(eventCols))

	events, err := repo.GetRecent(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

// ---------------------------------------------------------------------------
// GetCounters
// ---------------------------------------------------------------------------

func TestGetCounters_Found(t *testing.T) {
	repo, mock := newEventRepo(t)
	mock.ExpectQuery("SELECT.*FROM request_count").
		WithArgs("principal-1").
		WillReturnRows(sqlmock.NewRows([]string{"principal_id", "total_req", "success_resp", "error_resp"}).
			AddRow("principal-1", 10, 8, 2))

	cs, err := repo.GetCounters(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Total != 10 || cs.Success != 8 || cs.Error != 2 {
		t.Errorf("counters = %+v, want 10/8/2", cs)
	}
	if cs.Total != cs.Success+cs.Error {
		t.Errorf("counter invariant violated: %d != %d + %d", cs.Total, cs.Success, cs.Error)
	}
}

func TestGetCounters_UnknownPrincipalGetsZeros(t *testing.T) {
	repo, mock := newEventRepo(t)
	mock.ExpectQuery("SELECT.*FROM request_count").
		WithArgs("never-seen").
		WillReturnRows(sqlmock.NewRows([]string{"principal_id", "total_req", "success_resp", "error_resp"}))

	cs, err := repo.GetCounters(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Total != 0 || cs.Success != 0 || cs.Error != 0 {
		t.Errorf("counters = %+v, want all zero", cs)
	}
	if cs.PrincipalID != "never-seen" {
		t.Errorf("principal id = %q, want never-seen", cs.PrincipalID)
	}
}

// ---------------------------------------------------------------------------
// GetAnalysis
// ---------------------------------------------------------------------------

func TestGetAnalysis_Populated(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectQuery("SELECT AVG").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(0.125))
	mock.ExpectQuery("SELECT EXTRACT").
		WillReturnRows(sqlmock.NewRows([]string{"hour", "count"}).AddRow(14, 42))
	mock.ExpectQuery("SELECT endpoint").
		WillReturnRows(sqlmock.NewRows([]string{"endpoint", "count"}).AddRow("/api/v1/patients", 30))

	a, err := repo.GetAnalysis(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AvgResponseTime != 0.125 {
		t.Errorf("avg = %v, want 0.125", a.AvgResponseTime)
	}
	if a.PeakHour != "14:00" || a.RequestsInPeakHour != 42 {
		t.Errorf("peak = %q/%d, want 14:00/42", a.PeakHour, a.RequestsInPeakHour)
	}
	if a.TopEndpoint != "/api/v1/patients" || a.RequestsToTopEndpoint != 30 {
		t.Errorf("top = %q/%d, want /api/v1/patients/30", a.TopEndpoint, a.RequestsToTopEndpoint)
	}
}

func TestGetAnalysis_EmptyTables(t *testing.T) {
	repo, mock := newEventRepo(t)

	// AVG over zero rows yields SQL NULL, not zero rows.
	mock.ExpectQuery("SELECT AVG").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))
	mock.ExpectQuery("SELECT EXTRACT").
		WillReturnRows(sqlmock.NewRows([]string{"hour", "count"}))
	mock.ExpectQuery("SELECT endpoint").
		WillReturnRows(sqlmock.NewRows([]string{"endpoint", "count"}))

	a, err := repo.GetAnalysis(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AvgResponseTime != 0 || a.PeakHour != "" || a.TopEndpoint != "" {
		t.Errorf("analysis = %+v, want zero values for empty tables", a)
	}
}
