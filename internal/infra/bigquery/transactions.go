package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
)

// maxRowsPerStatement keeps batched DML well under the query parameter limit.
const maxRowsPerStatement = 200

// updateSkipColumns are never rewritten by UpdateMany. User fields are set on
// insert and afterwards belong to the user.
var updateSkipColumns = []string{"created_ts", "category", "budget", "tags", "notes"}

// FindByExternalIDs implements repository.TransactionRepository.
func (s *Store) FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*domain.Transaction, error) {
	result := make(map[string]*domain.Transaction, len(externalIDs))
	if len(externalIDs) == 0 {
		return result, nil
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE external_id IN UNNEST(@ids)
	`, transactionColumns, s.table(transactionsTable))

	rows, err := readAll[TransactionRow](ctx, s, sql, []bigquery.QueryParameter{
		{Name: "ids", Value: externalIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("FindByExternalIDs: %w", err)
	}

	for _, r := range rows {
		result[r.ExternalID] = r.ToDomain()
	}
	return result, nil
}

// SaveMany implements repository.TransactionRepository.
// Rows are inserted in the given order.
func (s *Store) SaveMany(ctx context.Context, txs []*domain.Transaction) error {
	now := time.Now().UTC()
	for start := 0; start < len(txs); start += maxRowsPerStatement {
		batch := txs[start:min(start+maxRowsPerStatement, len(txs))]

		rows := make([][]bigquery.QueryParameter, len(batch))
		for i, tx := range batch {
			rows[i] = NewTransactionRow(tx, now).params()
		}

		sql, params := buildInsert(s.table(transactionsTable), rows)
		if _, err := s.exec(ctx, sql, params); err != nil {
			return fmt.Errorf("SaveMany: inserting %d rows: %w", len(batch), err)
		}
	}
	return nil
}

// UpdateMany implements repository.TransactionRepository.
// User columns are left as stored.
func (s *Store) UpdateMany(ctx context.Context, txs []*domain.Transaction) error {
	now := time.Now().UTC()
	for start := 0; start < len(txs); start += maxRowsPerStatement {
		batch := txs[start:min(start+maxRowsPerStatement, len(txs))]

		rows := make([][]bigquery.QueryParameter, len(batch))
		for i, tx := range batch {
			rows[i] = NewTransactionRow(tx, now).params()
		}

		sql, params := buildMerge(s.table(transactionsTable), "external_id", updateSkipColumns, rows)
		affected, err := s.exec(ctx, sql, params)
		if err != nil {
			return fmt.Errorf("UpdateMany: merging %d rows: %w", len(batch), err)
		}
		if affected != int64(len(batch)) {
			return fmt.Errorf("UpdateMany: %d of %d rows matched: %w",
				affected, len(batch), repository.ErrInvariantViolation)
		}
	}
	return nil
}
