package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

type bigQueryBackend struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func newBigQueryBackend(ctx context.Context, projectID, datasetID, appliedBy string) (*bigQueryBackend, error) {
	if projectID == "" {
		return nil, fmt.Errorf("-project flag is required for the bigquery backend")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating BigQuery client: %w", err)
	}
	return &bigQueryBackend{client: client, projectID: projectID, datasetID: datasetID, appliedBy: appliedBy}, nil
}

func (b *bigQueryBackend) String() string {
	return fmt.Sprintf("BigQuery project: %s, dataset: %s", b.projectID, b.datasetID)
}

func (b *bigQueryBackend) Close() error {
	return b.client.Close()
}

func (b *bigQueryBackend) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", b.projectID, b.datasetID)
}

func (b *bigQueryBackend) run(ctx context.Context, sql string, params ...bigquery.QueryParameter) error {
	query := b.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}

func (b *bigQueryBackend) EnsureSchemaMigrations(ctx context.Context) error {
	return b.run(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, b.table()))
}

func (b *bigQueryBackend) Applied(ctx context.Context) ([]AppliedMigration, error) {
	query := b.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, b.table()))

	it, err := query.Read(ctx)
	if err != nil {
		// The table may not be visible yet right after creation.
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// Apply runs the migration and then records it. BigQuery DDL is not
// transactional, so a failure between the two leaves the migration unrecorded.
func (b *bigQueryBackend) Apply(ctx context.Context, m Migration) error {
	if err := b.run(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing: %w", err)
	}

	err := b.run(ctx, fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, b.table()),
		bigquery.QueryParameter{Name: "version", Value: m.Version},
		bigquery.QueryParameter{Name: "name", Value: m.Name},
		bigquery.QueryParameter{Name: "checksum", Value: m.Checksum},
		bigquery.QueryParameter{Name: "applied_by", Value: b.appliedBy},
	)
	if err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	return nil
}
