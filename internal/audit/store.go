package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/morannon-ai/morannon/internal/platform/database"
)

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	_, err = db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

// buildBatchInsert constructs a multi-row INSERT statement.
func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(subject, tenant, action, effective_roles, max_classification, policy_version, chunk_id, decision, reason, metadata)"
	const ncols = 10
	var placeholders []string
	var args []any

	for i, e := range events {
		base := i * ncols
		nums := make([]string, ncols)
		for j := range nums {
			nums[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(nums, ", ")+")")

		var metaJSON []byte
		var err error
		if e.Metadata != nil {
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		roles := e.EffectiveRoles
		if roles == nil {
			roles = []string{}
		}

		args = append(args,
			e.Subject, e.Tenant, e.Action, roles, e.MaxClassification,
			e.PolicyVersion, e.ChunkID, e.Decision, e.Reason, metaJSON,
		)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	Tenant   string
	Action   *string
	Subject  *string
	Decision *string
	ChunkID  *string
	After    *time.Time
	Before   *time.Time
	Limit    int
}

// buildListQuery constructs a parameterized SELECT for audit events.
func buildListQuery(p ListEventsParams) (string, []any) {
	var conditions []string
	var args []any
	argN := 1

	conditions = append(conditions, fmt.Sprintf("tenant = $%d", argN))
	args = append(args, p.Tenant)
	argN++

	if p.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argN))
		args = append(args, *p.Action)
		argN++
	}
	if p.Subject != nil {
		conditions = append(conditions, fmt.Sprintf("subject = $%d", argN))
		args = append(args, *p.Subject)
		argN++
	}
	if p.Decision != nil {
		conditions = append(conditions, fmt.Sprintf("decision = $%d", argN))
		args = append(args, *p.Decision)
		argN++
	}
	if p.ChunkID != nil {
		conditions = append(conditions, fmt.Sprintf("chunk_id = $%d", argN))
		args = append(args, *p.ChunkID)
		argN++
	}
	if p.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argN))
		args = append(args, *p.After)
		argN++
	}
	if p.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argN))
		args = append(args, *p.Before)
		argN++
	}

	sql := fmt.Sprintf(
		`SELECT id, subject, tenant, action, effective_roles, max_classification, policy_version, chunk_id, decision, reason, metadata, created_at
		FROM audit_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`,
		strings.Join(conditions, " AND "), argN,
	)
	args = append(args, p.Limit)

	return sql, args
}
