package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationPattern matches migration files such as 0001_create_expenses.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrator applies the embedded SQL migrations to a dataset and records them
// in a schema_migrations table.
type Migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	appliedBy string
	log       zerolog.Logger
}

// NewMigrator creates a Migrator. tableID fills the {{TABLE_ID}} placeholder.
func NewMigrator(client *bigquery.Client, projectID, datasetID, tableID, appliedBy string, log zerolog.Logger) *Migrator {
	return &Migrator{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
		appliedBy: appliedBy,
		log:       log,
	}
}

// Up applies every pending migration in version order and returns how many
// were applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureDataset(ctx); err != nil {
		return 0, fmt.Errorf("ensure dataset: %w", err)
	}
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := ReadMigrations(migrationsFS, "migrations", m.placeholders())
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	m.log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("get applied migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for _, am := range applied {
		appliedVersions[am.Version] = true
	}

	count := 0
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			m.log.Debug().Msgf("[SKIP] %04d_%s (already applied)", migration.Version, migration.Name)
			continue
		}

		m.log.Info().Msgf("[RUN]  %04d_%s", migration.Version, migration.Name)
		if err := m.runQuery(ctx, m.client.Query(migration.SQL)); err != nil {
			return count, fmt.Errorf("execute migration %04d_%s: %w", migration.Version, migration.Name, err)
		}
		if err := m.recordMigration(ctx, migration); err != nil {
			return count, fmt.Errorf("record migration %04d_%s: %w", migration.Version, migration.Name, err)
		}
		m.log.Info().Msgf("[OK]   %04d_%s", migration.Version, migration.Name)
		count++
	}

	return count, nil
}

func (m *Migrator) placeholders() map[string]string {
	return map[string]string{
		"{{PROJECT_ID}}": m.projectID,
		"{{DATASET_ID}}": m.datasetID,
		"{{TABLE_ID}}":   m.tableID,
	}
}

func (m *Migrator) ensureDataset(ctx context.Context) error {
	ds := m.client.DatasetInProject(m.projectID, m.datasetID)
	if _, err := ds.Metadata(ctx); err == nil {
		return nil
	}
	return m.runQuery(ctx, m.client.Query(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS `%s.%s`", m.projectID, m.datasetID)))
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, m.projectID, m.datasetID)

	return m.runQuery(ctx, m.client.Query(sql))
}

// appliedMigrations retrieves the list of already applied migrations
func (m *Migrator) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, m.projectID, m.datasetID)

	it, err := m.client.Query(sql).Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
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

// recordMigration records a successfully applied migration in schema_migrations
func (m *Migrator) recordMigration(ctx context.Context, migration Migration) error {
	sql := fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.projectID, m.datasetID)

	query := m.client.Query(sql)
	query.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return m.runQuery(ctx, query)
}

func (m *Migrator) runQuery(ctx context.Context, query *bigquery.Query) error {
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

// ReadMigrations reads all migration files in dir, substitutes placeholders
// and returns them sorted by version. Files not matching NNNN_name.sql are
// skipped. The checksum is taken over the raw file so that the same
// migration applied to another dataset keeps its checksum.
func ReadMigrations(fsys fs.FS, dir string, placeholders map[string]string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, ok := ParseMigrationFilename(entry.Name())
		if !ok {
			continue
		}

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		sql := string(content)
		for placeholder, value := range placeholders {
			sql = strings.ReplaceAll(sql, placeholder, value)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// ParseMigrationFilename extracts the version and name from a migration file name.
func ParseMigrationFilename(filename string) (version int, name string, ok bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}
