package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// backend applies migrations to one store.
type backend interface {
	EnsureSchemaMigrations(ctx context.Context) error
	Applied(ctx context.Context) ([]AppliedMigration, error)
	Apply(ctx context.Context, m Migration) error
	Close() error
	String() string
}

var (
	backendName   = flag.String("backend", "postgres", "Store to migrate: postgres or bigquery")
	databaseURL   = flag.String("database-url", "", "Postgres connection URL (defaults to DATABASE_URL)")
	projectID     = flag.String("project", "", "GCP project ID (defaults to BQ_PROJECT_ID)")
	datasetID     = flag.String("dataset", "", "BigQuery dataset ID (defaults to BQ_DATASET_ID, then ledger)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "", "Path to migrations directory (defaults to migrations/<backend>)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	ctx := context.Background()

	b, placeholders, err := openBackend(ctx)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer b.Close()

	log.Printf("Connected to %s", b)

	if err := b.EnsureSchemaMigrations(ctx); err != nil {
		log.Fatalf("Failed to ensure schema_migrations table: %v", err)
	}

	dirFlag := *migrationsDir
	if dirFlag == "" {
		dirFlag = "migrations/" + *backendName
	}
	dir, err := resolveDir(dirFlag)
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}

	migrations, err := readMigrations(dir, placeholders)
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}
	log.Printf("Found %d migration files", len(migrations))

	applied, err := b.Applied(ctx)
	if err != nil {
		log.Fatalf("Failed to get applied migrations: %v", err)
	}
	log.Printf("Found %d already applied migrations", len(applied))

	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		log.Fatalf("Refusing to migrate: %v", err)
	}

	for _, m := range pending {
		log.Printf("  [RUN]  %04d_%s", m.Version, m.Name)
		if err := b.Apply(ctx, m); err != nil {
			log.Fatalf("Failed to apply migration %04d_%s: %v", m.Version, m.Name, err)
		}
		log.Printf("  [OK]   %04d_%s", m.Version, m.Name)
	}

	if len(pending) == 0 {
		log.Println("No new migrations to apply. Database is up to date.")
	} else {
		log.Printf("Successfully applied %d migration(s)", len(pending))
	}
}

func openBackend(ctx context.Context) (backend, map[string]string, error) {
	switch *backendName {
	case "postgres":
		url := firstNonEmpty(*databaseURL, os.Getenv("DATABASE_URL"))
		b, err := newPostgresBackend(ctx, url, *appliedBy)
		return b, nil, err
	case "bigquery":
		project := firstNonEmpty(*projectID, os.Getenv("BQ_PROJECT_ID"))
		dataset := firstNonEmpty(*datasetID, os.Getenv("BQ_DATASET_ID"), "ledger")
		b, err := newBigQueryBackend(ctx, project, dataset, *appliedBy)
		return b, map[string]string{"PROJECT_ID": project, "DATASET_ID": dataset}, err
	default:
		log.Fatalf("Unknown backend %q: use postgres or bigquery", *backendName)
		return nil, nil, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
