package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/domain"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanBidYearRow scans a bid year row. Compatible with both sql.Row and
// sql.Rows.
func scanBidYearRow(row scanner) (domain.BidYear, error) {
	var (
		y     domain.BidYear
		stage string
	)
	err := row.Scan(&y.ID, &y.Year, &y.StartDate, &y.NumPayPeriods,
		&y.Active, &y.ExpectedAreaCount, &stage)
	if err == sql.ErrNoRows {
		return domain.BidYear{}, err
	}
	if err != nil {
		return domain.BidYear{}, fmt.Errorf("failed to scan bid year row: %w", err)
	}
	y.Stage, err = domain.ParseStage(stage)
	if err != nil {
		return domain.BidYear{}, fmt.Errorf("bid year %d: %w", y.Year, err)
	}
	return y, nil
}

func scanAreaRow(row scanner) (domain.Area, error) {
	var a domain.Area
	err := row.Scan(&a.ID, &a.BidYearID, &a.Code, &a.Name, &a.SystemArea,
		&a.ExpectedUserCount)
	if err != nil {
		return domain.Area{}, fmt.Errorf("failed to scan area row: %w", err)
	}
	return a, nil
}

func scanUserRow(row scanner) (domain.User, error) {
	var (
		u           domain.User
		initials    string
		windowStart sql.NullTime
		windowEnd   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.BidYearID, &u.AreaID, &initials, &u.Name,
		&u.Type, &u.Crew,
		&u.Senior.CumulativeBUDate, &u.Senior.BUDate,
		&u.Senior.EODDate, &u.Senior.SCDDate, &u.Senior.Lottery,
		&u.ExcludedFromBidding, &u.ExcludedFromLeaveCalc, &u.NoBidReviewed,
		&u.BidOrder, &windowStart, &windowEnd)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to scan user row: %w", err)
	}
	u.Initials = domain.Initials(initials)
	if windowStart.Valid {
		u.WindowStart = windowStart.Time
	}
	if windowEnd.Valid {
		u.WindowEnd = windowEnd.Time
	}
	return u, nil
}

func scanRoundRow(row scanner) (domain.RoundConfig, error) {
	var (
		r         domain.RoundConfig
		startSecs int64
		endSecs   int64
	)
	err := row.Scan(&r.ID, &r.BidYearID, &r.AreaID, &r.RoundNumber,
		&r.StartDate, &r.BiddersPerDay, &startSecs, &endSecs, &r.Timezone)
	if err != nil {
		return domain.RoundConfig{}, fmt.Errorf("failed to scan round row: %w", err)
	}
	r.WindowStart = time.Duration(startSecs) * time.Second
	r.WindowEnd = time.Duration(endSecs) * time.Second
	return r, nil
}

func scanEventRow(row scanner) (audit.Event, error) {
	var (
		ev     audit.Event
		before []byte
		after  []byte
	)
	err := row.Scan(&ev.Partition, &ev.Seq, &ev.Actor.ID, &ev.Actor.Type,
		&ev.Cause.ID, &ev.Cause.Description,
		&ev.Action.Name, &ev.Action.Details,
		&ev.EntityKind, &ev.EntityID, &before, &after, &ev.RecordedAt)
	if err != nil {
		return audit.Event{}, fmt.Errorf("failed to scan event row: %w", err)
	}
	if len(before) > 0 {
		ev.Before = before
	}
	if len(after) > 0 {
		ev.After = after
	}
	return ev, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev audit.Event) error {
	_, err := tx.ExecContext(ctx, queryInsertEvent,
		ev.Partition, ev.Seq, ev.Actor.ID, ev.Actor.Type,
		ev.Cause.ID, ev.Cause.Description,
		ev.Action.Name, ev.Action.Details,
		ev.EntityKind, ev.EntityID,
		nullBytes(ev.Before), nullBytes(ev.After), ev.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event seq %d: %w", ev.Seq, err)
	}
	return nil
}

func upsertBidYear(ctx context.Context, tx *sql.Tx, y domain.BidYear) error {
	_, err := tx.ExecContext(ctx, queryUpsertBidYear,
		y.ID, y.Year, y.StartDate, y.NumPayPeriods, y.Active,
		y.ExpectedAreaCount, y.Stage.String())
	if err != nil {
		return fmt.Errorf("failed to upsert bid year %d: %w", y.Year, err)
	}
	return nil
}

func upsertArea(ctx context.Context, tx *sql.Tx, a domain.Area) error {
	_, err := tx.ExecContext(ctx, queryUpsertArea,
		a.ID, a.BidYearID, a.Code, a.Name, a.SystemArea, a.ExpectedUserCount)
	if err != nil {
		return fmt.Errorf("failed to upsert area %d: %w", a.ID, err)
	}
	return nil
}

func upsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, queryUpsertUser,
		u.ID, u.BidYearID, u.AreaID, string(u.Initials), u.Name,
		string(u.Type), u.Crew,
		u.Senior.CumulativeBUDate, u.Senior.BUDate,
		u.Senior.EODDate, u.Senior.SCDDate, u.Senior.Lottery,
		u.ExcludedFromBidding, u.ExcludedFromLeaveCalc, u.NoBidReviewed,
		u.BidOrder, nullTime(u.WindowStart), nullTime(u.WindowEnd))
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
	}
	return nil
}

func upsertRound(ctx context.Context, tx *sql.Tx, r domain.RoundConfig) error {
	_, err := tx.ExecContext(ctx, queryUpsertRound,
		r.ID, r.BidYearID, r.AreaID, r.RoundNumber, r.StartDate,
		r.BiddersPerDay, int64(r.WindowStart/time.Second),
		int64(r.WindowEnd/time.Second), r.Timezone)
	if err != nil {
		return fmt.Errorf("failed to upsert round %d: %w", r.ID, err)
	}
	return nil
}

// nullTime maps the zero time to SQL NULL; the zero value means "not
// materialized yet" throughout the domain.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// nullBytes maps an empty fragment to SQL NULL rather than an empty jsonb.
func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
