// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NeodarZ/prefect/internal/incident"
)

var tracer = otel.Tracer("github.com/NeodarZ/prefect/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store on the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const incidentColumns = `id, name, summary, severity, status, declared_by, created_at, resolved_at`

// Get retrieves an incident by ID, including comments and timeline.
func (s *Store) Get(ctx context.Context, id string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := s.scanIncidentRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}

	if err := s.loadChildren(ctx, inc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	return inc, true, nil
}

// List returns incidents matching the filter, newest first. Comments and
// timeline are loaded per incident; lists are small enough that this stays
// simpler than a join.
func (s *Store) List(ctx context.Context, f incident.ListFilter) ([]*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR severity = $2)
		ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, string(f.Status), string(f.Severity))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, err := s.scanIncident(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	for _, inc := range out {
		if err := s.loadChildren(ctx, inc); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	return out, nil
}

// Put upserts the incident row and inserts any new comments and timeline
// entries. Both children are append-only, so existing rows are left alone.
func (s *Store) Put(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := s.upsertIncident(ctx, tx, inc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.insertComments(ctx, tx, inc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.insertTimeline(ctx, tx, inc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountOpen returns the number of incidents not yet resolved.
func (s *Store) CountOpen(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "pgstore.CountOpen", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM incidents WHERE status <> $1`, string(incident.StatusResolved),
	).Scan(&n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("count open: %w", err)
	}
	return n, nil
}

func (s *Store) upsertIncident(ctx context.Context, tx pgx.Tx, inc *incident.Incident) error {
	var resolvedAt *time.Time
	if !inc.ResolvedAt.IsZero() {
		resolvedAt = &inc.ResolvedAt
	}

	query := `INSERT INTO incidents (
		id, name, summary, severity, status, declared_by, created_at, resolved_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (id) DO UPDATE SET
		name        = EXCLUDED.name,
		summary     = EXCLUDED.summary,
		severity    = EXCLUDED.severity,
		status      = EXCLUDED.status,
		declared_by = EXCLUDED.declared_by,
		resolved_at = EXCLUDED.resolved_at`

	_, err := tx.Exec(ctx, query,
		inc.ID, inc.Name, inc.Summary, string(inc.Severity), string(inc.Status),
		inc.DeclaredBy, inc.CreatedAt, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}
	return nil
}

func (s *Store) insertComments(ctx context.Context, tx pgx.Tx, inc *incident.Incident) error {
	for _, c := range inc.Comments {
		_, err := tx.Exec(ctx,
			`INSERT INTO incident_comments (id, incident_id, author, body, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			c.ID, inc.ID, c.Author, c.Body, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert comment %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *Store) insertTimeline(ctx context.Context, tx pgx.Tx, inc *incident.Incident) error {
	for _, e := range inc.Timeline {
		_, err := tx.Exec(ctx,
			`INSERT INTO incident_timeline (incident_id, seq, kind, actor, detail, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (incident_id, seq) DO NOTHING`,
			inc.ID, e.Seq, string(e.Kind), e.Actor, e.Detail, e.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("insert timeline seq %d: %w", e.Seq, err)
		}
	}
	return nil
}

// loadChildren reads comments and timeline onto an incident.
func (s *Store) loadChildren(ctx context.Context, inc *incident.Incident) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, author, body, created_at FROM incident_comments
		 WHERE incident_id = $1 ORDER BY created_at, id`,
		inc.ID,
	)
	if err != nil {
		return fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c incident.Comment
		if err := rows.Scan(&c.ID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		inc.Comments = append(inc.Comments, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}

	trows, err := s.pool.Query(ctx,
		`SELECT seq, kind, actor, detail, occurred_at FROM incident_timeline
		 WHERE incident_id = $1 ORDER BY seq`,
		inc.ID,
	)
	if err != nil {
		return fmt.Errorf("query timeline: %w", err)
	}
	defer trows.Close()

	for trows.Next() {
		var (
			e    incident.TimelineEntry
			kind string
		)
		if err := trows.Scan(&e.Seq, &kind, &e.Actor, &e.Detail, &e.OccurredAt); err != nil {
			return fmt.Errorf("scan timeline: %w", err)
		}
		e.Kind = incident.EntryKind(kind)
		inc.Timeline = append(inc.Timeline, e)
	}
	if err := trows.Err(); err != nil {
		return fmt.Errorf("iterate timeline: %w", err)
	}
	return nil
}

// scanIncidentRow scans a single row into an incident (without children).
// Returns (nil, nil) when no row is found.
func (s *Store) scanIncidentRow(row pgx.Row) (*incident.Incident, error) {
	inc, err := scanFrom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	return inc, nil
}

func (s *Store) scanIncident(rows pgx.Rows) (*incident.Incident, error) {
	inc, err := scanFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return inc, nil
}

func scanFrom(row pgx.Row) (*incident.Incident, error) {
	var (
		inc        incident.Incident
		severity   string
		status     string
		resolvedAt *time.Time
	)
	err := row.Scan(
		&inc.ID, &inc.Name, &inc.Summary, &severity, &status,
		&inc.DeclaredBy, &inc.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	inc.Severity = incident.Severity(severity)
	inc.Status = incident.Status(status)
	if resolvedAt != nil {
		inc.ResolvedAt = *resolvedAt
	}
	return &inc, nil
}
