package definitions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/proscore/internal/domain/scoring"
	"github.com/ehr/proscore/internal/platform/fhir"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGStore keeps questionnaire definitions in the questionnaire_definition
// table, one row per resource id.
type PGStore struct {
	db queryable
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

// LoadQuestionnaire finds a definition by id, name or canonical url. It
// returns nil, nil when no row matches.
func (s *PGStore) LoadQuestionnaire(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
	bare := stripVersion(strings.TrimSpace(ref))
	if bare == "" {
		return nil, nil
	}
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT resource FROM questionnaire_definition
		WHERE url = $1 OR lower(id) = $2 OR lower(name) = $2
		ORDER BY (url = $1) DESC, updated_at DESC
		LIMIT 1`,
		bare, scoring.NormalizeRef(bare)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query questionnaire %s: %w", ref, err)
	}
	var q fhir.Questionnaire
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("decode stored questionnaire %s: %w", ref, err)
	}
	return &q, nil
}

// Upsert stores q under its id, replacing any earlier version.
func (s *PGStore) Upsert(ctx context.Context, q *fhir.Questionnaire) error {
	if q == nil || q.ID == "" {
		return fmt.Errorf("questionnaire without id")
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode questionnaire %s: %w", q.ID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO questionnaire_definition (id, url, name, resource, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET url = EXCLUDED.url, name = EXCLUDED.name,
			resource = EXCLUDED.resource, updated_at = NOW()`,
		q.ID, stripVersion(q.URL), q.Name, raw)
	if err != nil {
		return fmt.Errorf("upsert questionnaire %s: %w", q.ID, err)
	}
	return nil
}

// Import upserts every definition and reports how many were stored. It stops
// at the first failure.
func (s *PGStore) Import(ctx context.Context, qs []*fhir.Questionnaire) (int, error) {
	n := 0
	for _, q := range qs {
		if err := s.Upsert(ctx, q); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Delete removes the definition with id. Deleting a missing id is not an
// error.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM questionnaire_definition WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete questionnaire %s: %w", id, err)
	}
	return nil
}

func stripVersion(ref string) string {
	if i := strings.IndexByte(ref, '|'); i >= 0 {
		return ref[:i]
	}
	return ref
}
