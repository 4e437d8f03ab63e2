// Package bigquery stores mirrored accounts and transactions in BigQuery.
//
// Writes use DML statements rather than the streaming inserter so that rows
// can be updated right after they are inserted.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	accountsTable     = "accounts"
	transactionsTable = "transactions"
)

// Config identifies the dataset holding the ledger tables.
type Config struct {
	ProjectID string
	DatasetID string
}

// Store is a BigQuery-backed account and transaction repository.
// It holds a shared BigQuery client to avoid creating a new connection for each operation.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewStore creates a Store with its own client.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" {
		return nil, fmt.Errorf("NewStore: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, cfg), nil
}

// NewStoreWithClient creates a Store using the provided BigQuery client.
func NewStoreWithClient(client *bigquery.Client, cfg Config) *Store {
	return &Store{
		client:  client,
		project: cfg.ProjectID,
		dataset: cfg.DatasetID,
	}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) table(name string) string {
	return qualifiedTable(s.project, s.dataset, name)
}

func qualifiedTable(project, dataset, name string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, name)
}

// exec runs a DML statement and returns the number of affected rows.
func (s *Store) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return stats.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// readAll runs a query and scans every row into T.
func readAll[T any](ctx context.Context, s *Store, sql string, params []bigquery.QueryParameter) ([]*T, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	var rows []*T
	for {
		var row T
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
