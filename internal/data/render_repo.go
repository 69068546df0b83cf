package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RenderEvent is one page render as recorded for the audit trail. The
// pipeline only writes these; nothing reads them back into a decision.
type RenderEvent struct {
	ID             int64
	RequestID      string
	RenderedAt     time.Time
	ProductID      string
	InventoryOK    bool
	InventoryError string
	PrimaryRegion  string
	VisitorRegion  string
	GeoResolved    bool
	ShowStorefront bool
	Reason         string
	Duration       time.Duration
}

// ReasonCount aggregates render events by decision reason.
type ReasonCount struct {
	Reason string
	Shown  bool
	Count  int
}

func InsertRenderEvent(ctx context.Context, ev RenderEvent) (int64, error) {
	const stmt = `
		INSERT INTO render_events (
			request_id, rendered_at, product_id, inventory_ok, inventory_error,
			primary_region, visitor_region, geo_resolved, show_storefront, reason, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if ev.RenderedAt.IsZero() {
		ev.RenderedAt = time.Now()
	}

	result, err := ExecDB(ctx, stmt,
		ev.RequestID,
		formatTime(ev.RenderedAt),
		ev.ProductID,
		ev.InventoryOK,
		nullableString(ev.InventoryError),
		nullableString(ev.PrimaryRegion),
		nullableString(ev.VisitorRegion),
		ev.GeoResolved,
		ev.ShowStorefront,
		ev.Reason,
		ev.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting render event: %w", err)
	}
	return result.LastInsertId()
}

// DeleteRenderEventsBefore removes up to limit events rendered before cutoff.
func DeleteRenderEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	const stmt = `
		DELETE FROM render_events
		WHERE id IN (
			SELECT id FROM render_events
			WHERE rendered_at < ?
			ORDER BY rendered_at
			LIMIT ?
		)`

	result, err := ExecDB(ctx, stmt, formatTime(cutoff), limit)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

func CountRenderEvents(ctx context.Context) (int, error) {
	dbConn, err := GetDB()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	if err := dbConn.QueryRowContext(ctx, `SELECT COUNT(*) FROM render_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting render events: %w", err)
	}
	return n, nil
}

// RecentRenderEvents returns the newest events first.
func RecentRenderEvents(ctx context.Context, limit int) ([]RenderEvent, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := dbConn.QueryContext(ctx, `
		SELECT id, request_id, rendered_at, product_id, inventory_ok, inventory_error,
			primary_region, visitor_region, geo_resolved, show_storefront, reason, duration_ms
		FROM render_events
		ORDER BY rendered_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying render events: %w", err)
	}
	defer rows.Close()

	var events []RenderEvent
	for rows.Next() {
		var (
			ev                                          RenderEvent
			requestID, invErr, primary, visitor, reason sql.NullString
			renderedAt                                  string
			durationMS                                  int64
		)
		if err := rows.Scan(&ev.ID, &requestID, &renderedAt, &ev.ProductID, &ev.InventoryOK, &invErr,
			&primary, &visitor, &ev.GeoResolved, &ev.ShowStorefront, &reason, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning render event: %w", err)
		}
		if ev.RenderedAt, err = parseTime(renderedAt); err != nil {
			return nil, fmt.Errorf("parsing rendered_at: %w", err)
		}
		ev.RequestID = requestID.String
		ev.InventoryError = invErr.String
		ev.PrimaryRegion = primary.String
		ev.VisitorRegion = visitor.String
		ev.Reason = reason.String
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DecisionSummary counts events since the given time, grouped by reason.
func DecisionSummary(ctx context.Context, since time.Time) ([]ReasonCount, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := dbConn.QueryContext(ctx, `
		SELECT COALESCE(reason, ''), show_storefront, COUNT(*)
		FROM render_events
		WHERE rendered_at >= ?
		GROUP BY reason, show_storefront
		ORDER BY reason`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("summarizing render events: %w", err)
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		if err := rows.Scan(&rc.Reason, &rc.Shown, &rc.Count); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
