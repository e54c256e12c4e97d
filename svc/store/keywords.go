package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Keyword is a tracked keyword of a user's domain. Nil positions mean the
// domain was not ranked.
type Keyword struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	DomainID         uuid.UUID
	Keyword          string
	Domain           string
	CountryCode      string
	Device           string
	Position         *int
	PreviousPosition *int
	LastChecked      *time.Time
}

// RankHistory is one append-only rank observation per keyword and day.
type RankHistory struct {
	KeywordID   uuid.UUID
	CheckDate   time.Time
	Position    *int
	URL         string
	Device      string
	CountryCode string
}

const selectKeyword = `SELECT k.id, k.user_id, k.domain_id, k.keyword, d.domain_name,
	k.country_code, k.device_type, k.position, k.previous_position, k.last_checked
FROM rank_keywords k
JOIN rank_domains d ON d.id = k.domain_id
WHERE k.id = $1 AND k.user_id = $2`

// GetKeyword loads a keyword owned by userID.
func (r *Repository) GetKeyword(ctx context.Context, userID, keywordID uuid.UUID) (*Keyword, error) {
	var k Keyword
	err := r.db.QueryRow(ctx, selectKeyword, keywordID, userID).Scan(
		&k.ID, &k.UserID, &k.DomainID, &k.Keyword, &k.Domain,
		&k.CountryCode, &k.Device, &k.Position, &k.PreviousPosition, &k.LastChecked,
	)
	if err != nil {
		return nil, fmt.Errorf("get keyword %s: %w", keywordID, notFound(err))
	}
	return &k, nil
}

const updateKeywordPosition = `UPDATE rank_keywords
SET position = $2, previous_position = $3, last_checked = $4, updated_at = $4
WHERE id = $1`

// UpdateKeywordPosition stores a new position and the one it replaces.
func (r *Repository) UpdateKeywordPosition(ctx context.Context, keywordID uuid.UUID, position, previous *int, checkedAt time.Time) error {
	op := Operation{Action: "keyword.update_position", Resource: "rank_keywords", ResourceID: keywordID.String(), Reason: "rank check"}
	return r.secure.Do(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, updateKeywordPosition, keywordID, position, previous, checkedAt)
		if err != nil {
			return fmt.Errorf("update keyword position: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update keyword position %s: %w", keywordID, ErrNotFound)
		}
		return nil
	})
}

const insertRankHistory = `INSERT INTO rank_history
	(keyword_id, check_date, position, url, device_type, country_code, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (keyword_id, check_date) DO NOTHING`

// InsertRankHistory appends a history row. It reports false when the
// keyword already has a row for that day.
func (r *Repository) InsertRankHistory(ctx context.Context, h RankHistory) (bool, error) {
	var inserted bool
	op := Operation{Action: "rank_history.insert", Resource: "rank_history", ResourceID: h.KeywordID.String(), Reason: "rank check"}
	err := r.secure.Do(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, insertRankHistory,
			h.KeywordID, h.CheckDate.UTC().Format(time.DateOnly), h.Position, h.URL, h.Device, h.CountryCode, r.now().UTC())
		if err != nil {
			return fmt.Errorf("insert rank history: %w", err)
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, err
}

// EnrichmentCandidate is a keyword bank entry due for enrichment.
type EnrichmentCandidate struct {
	ID          uuid.UUID
	Keyword     string
	CountryCode string
}

// KeywordEnrichment is the metadata written by the enrichment sweep.
type KeywordEnrichment struct {
	SearchVolume int
	Difficulty   int
	CPC          float64
	Intent       string
	EnrichedAt   time.Time
}

const selectEnrichmentCandidates = `SELECT id, keyword, country_code
FROM keyword_bank
WHERE enriched_at IS NULL OR enriched_at < $1
ORDER BY enriched_at ASC NULLS FIRST
LIMIT $2`

// ListKeywordsForEnrichment returns up to limit keywords never enriched or
// enriched before staleBefore, the oldest first.
func (r *Repository) ListKeywordsForEnrichment(ctx context.Context, staleBefore time.Time, limit int) ([]EnrichmentCandidate, error) {
	rows, err := r.db.Query(ctx, selectEnrichmentCandidates, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list keywords for enrichment: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EnrichmentCandidate, error) {
		var c EnrichmentCandidate
		err := row.Scan(&c.ID, &c.Keyword, &c.CountryCode)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan keywords for enrichment: %w", err)
	}
	return out, nil
}

const updateKeywordEnrichment = `UPDATE keyword_bank
SET search_volume = $2, difficulty = $3, cpc = $4, intent = $5, enriched_at = $6
WHERE id = $1`

func (r *Repository) UpdateKeywordEnrichment(ctx context.Context, id uuid.UUID, e KeywordEnrichment) error {
	op := Operation{Action: "keyword_bank.enrich", Resource: "keyword_bank", ResourceID: id.String(), Reason: "keyword enrichment"}
	return r.secure.Do(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, updateKeywordEnrichment, id, e.SearchVolume, e.Difficulty, e.CPC, e.Intent, e.EnrichedAt)
		if err != nil {
			return fmt.Errorf("update keyword enrichment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update keyword enrichment %s: %w", id, ErrNotFound)
		}
		return nil
	})
}
