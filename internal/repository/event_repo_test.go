package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"building_monitor/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

var eventColumns = []string{"id", "occurred_at", "group_name", "entity_id", "type", "message", "meta"}

func TestAppend_Success_WithDefaults(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEventSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO monitor_events")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(),
			"oil_rig", "b/1", "REMEDIATE", "rebuilt",
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Append(ctx(t), models.MonitorEvent{
		// EventID empty -> repo generates
		// OccurredAt zero -> repo sets UTC now
		Group:       "oil_rig",
		EntityID:    "b/1",
		Type:        "  remediate ",
		Description: "rebuilt",
		Metadata:    map[string]any{"command": "remediate_once"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestAppend_DBError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEventSQLite(db)

	mock.ExpectExec("INSERT INTO monitor_events").
		WillReturnError(errors.New("down"))

	err = repo.Append(ctx(t), models.MonitorEvent{Type: "round", Description: "x"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestList_NoFilters_And_MetadataParsing(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEventSQLite(db)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	js, _ := json.Marshal(map[string]any{"a": "b"})

	rows := sqlmock.NewRows(eventColumns).
		AddRow("1", formatTimestamp(now), "oil", "b/1", "INSPECT", "m1", string(js)).
		AddRow("2", formatTimestamp(now.Add(time.Hour)), "oil", "", "ROUND", "m2", nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, occurred_at, group_name, entity_id, type, message, meta FROM monitor_events ORDER BY occurred_at ASC`)).
		WillReturnRows(rows)

	got, err := repo.List(ctx(t), EventFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2, got %d", len(got))
	}
	if got[0].EventID != "1" || got[1].EventID != "2" {
		t.Fatalf("unexpected ids: %v, %v", got[0].EventID, got[1].EventID)
	}
	if !got[0].OccurredAt.Equal(now) || got[0].EntityID != "b/1" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	b1, _ := json.Marshal(got[0].Metadata)
	if string(b1) != string(js) {
		t.Fatalf("metadata mismatch: %s vs %s", string(b1), string(js))
	}
	if got[1].Metadata != nil {
		t.Fatalf("expected nil meta, got %#v", got[1].Metadata)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestList_WithFilters_OrderAndArgs(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEventSQLite(db)

	from := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	query := `SELECT * FROM (SELECT id, occurred_at, group_name, entity_id, type, message, meta FROM monitor_events` +
		` WHERE occurred_at >= ? AND occurred_at <= ? AND type = ? AND group_name = ? AND entity_id = ?` +
		` ORDER BY occurred_at DESC LIMIT ?) ORDER BY occurred_at ASC`

	rows := sqlmock.NewRows(eventColumns).
		AddRow("2", formatTimestamp(from), "oil", "b/1", "ERROR", "b", nil).
		AddRow("3", formatTimestamp(to), "oil", "b/1", "ERROR", "c", nil)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(formatTimestamp(from), formatTimestamp(to), "ERROR", "oil", "b/1", 50).
		WillReturnRows(rows)

	got, err := repo.List(ctx(t), EventFilter{
		From:     from,
		To:       to,
		Type:     " error ",
		Group:    "oil",
		EntityID: "b/1",
		Limit:    50,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "2" || got[1].EventID != "3" {
		t.Fatalf("unexpected results: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestList_BadTimestamp(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEventSQLite(db)

	rows := sqlmock.NewRows(eventColumns).
		AddRow("x", "yesterday", "oil", "", "ROUND", "msg", nil)

	mock.ExpectQuery("SELECT id, occurred_at").WillReturnRows(rows)

	if _, err = repo.List(ctx(t), EventFilter{}); err == nil {
		t.Fatalf("expected parse error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}
