package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"campaign_sync/core/domain"
	"campaign_sync/pkg/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "lib/pq unique", err: &pq.Error{Code: "23505"}, want: true},
		{name: "lib/pq foreign key", err: &pq.Error{Code: "23503"}},
		{name: "pgx unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pgx wrapped", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "sqlite unique", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, want: true},
		{name: "sqlite primary key", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, want: true},
		{name: "sqlite not null", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}},
		{name: "plain", err: errors.New("connection reset")},
		{name: "nil", err: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDBErrorCodes(t *testing.T) {
	if err := dbError("create campaign", &pq.Error{Code: "23505"}); err.Code != apperr.CodeConflict || err.HTTPStatus() != 409 {
		t.Errorf("unique violation = %s/%d, want CONFLICT/409", err.Code, err.HTTPStatus())
	}
	if err := dbError("create campaign", errors.New("timeout")); err.Code != apperr.CodeDatabaseError {
		t.Errorf("other error code = %s, want DATABASE_ERROR", err.Code)
	}
}

func TestCampaignAdapter_DuplicateCreateIsConflict(t *testing.T) {
	ctx := context.Background()
	campaigns := NewCampaignAdapter(newTestDB(t))

	if err := campaigns.Create(ctx, &domain.Campaign{ID: "uuid-1", CampaignID: 42}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name string
		c    *domain.Campaign
	}{
		{name: "same provider id", c: &domain.Campaign{ID: "uuid-2", CampaignID: 42}},
		{name: "same local id", c: &domain.Campaign{ID: "uuid-1", CampaignID: 43}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := campaigns.Create(ctx, tt.c)
			if !apperr.HasCode(err, apperr.CodeConflict) {
				t.Fatalf("err = %v, want CONFLICT", err)
			}
		})
	}
}
