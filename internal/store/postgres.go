package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/lib/pq"

	"github.com/cedros-gateway/gateway/internal/config"
)

// PostgresStore implements Store over PostgreSQL, storing each collection's
// documents as JSONB rows in its own table (id text primary key, doc jsonb),
// grounded on the teacher's PostgresStore connection/pool-setup shape but
// generalized from typed per-entity tables to one generic document table per
// collection, since C2 is collection-name-addressed rather than a fixed
// struct-per-entity schema.
type PostgresStore struct {
	db          *sql.DB
	ownsDB      bool
	tableNames  map[string]string
}

// NewPostgresStore opens a new PostgreSQL connection pool and prepares tables.
func NewPostgresStore(connectionString string, poolConfig config.PostgresPoolConfig, mapping config.SchemaMappingConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	config.ApplyPostgresPoolSettings(db, poolConfig)

	store := &PostgresStore{db: db, ownsDB: true, tableNames: tableNamesFromMapping(mapping)}
	if err := store.ensureTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB builds a PostgresStore over an existing pool shared
// with other gateway subsystems.
func NewPostgresStoreWithDB(db *sql.DB, mapping config.SchemaMappingConfig) (*PostgresStore, error) {
	store := &PostgresStore{db: db, ownsDB: false, tableNames: tableNamesFromMapping(mapping)}
	if err := store.ensureTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func tableNamesFromMapping(m config.SchemaMappingConfig) map[string]string {
	defaults := map[string]string{
		CollectionAPIs:               m.APIs.TableName,
		CollectionEndpoints:          m.Endpoints.TableName,
		CollectionEndpointValidation: m.EndpointValid.TableName,
		CollectionUsers:              m.Users.TableName,
		CollectionRoles:              m.Roles.TableName,
		CollectionGroups:             m.Groups.TableName,
		CollectionSubscriptions:      m.Subscriptions.TableName,
		CollectionRoutings:           m.Routings.TableName,
		CollectionTiers:              m.Tiers.TableName,
		CollectionTierAssignments:    m.TierAssignments.TableName,
		CollectionCreditGroups:       m.CreditGroups.TableName,
		CollectionUserCredits:        m.UserCredits.TableName,
		CollectionSecuritySettings:   m.SecuritySettings.TableName,
	}
	for collection, name := range defaults {
		if name == "" {
			defaults[collection] = collection
		}
	}
	return defaults
}

func (s *PostgresStore) table(collection string) string {
	if name, ok := s.tableNames[collection]; ok {
		return name
	}
	return collection
}

func (s *PostgresStore) ensureTables() error {
	for _, collection := range []string{
		CollectionAPIs, CollectionEndpoints, CollectionEndpointValidation, CollectionUsers,
		CollectionRoles, CollectionGroups, CollectionSubscriptions, CollectionRoutings,
		CollectionTiers, CollectionTierAssignments, CollectionCreditGroups, CollectionUserCredits,
		CollectionSecuritySettings,
	} {
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc JSONB NOT NULL)`,
			s.table(collection),
		)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create table %s: %w", s.table(collection), err)
		}
	}
	return nil
}

// FindOne implements Store. Every filter, "_id" included, is applied in
// application code after a full-table scan, since the gateway's own configuration tables
// are small (admin-managed entities, not request-scale data).
func (s *PostgresStore) FindOne(ctx context.Context, collection string, filter Filter) (Doc, error) {
	docs, err := s.scan(ctx, collection, filter, nil, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Find implements Store.
func (s *PostgresStore) Find(ctx context.Context, collection string, filter Filter, sortSpec *SortSpec, skip, limit int) ([]Doc, error) {
	docs, err := s.scan(ctx, collection, filter, sortSpec, skip, limit)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *PostgresStore) scan(ctx context.Context, collection string, filter Filter, sortSpec *SortSpec, skip, limit int) ([]Doc, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM %s`, s.table(collection)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []Doc
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		if matches(doc, filter) {
			matched = append(matched, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if sortSpec != nil {
		field, desc := sortSpec.Field, sortSpec.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareValues(matched[i][field], matched[j][field])
			if desc {
				return less > 0
			}
			return less < 0
		})
	}
	if skip > 0 {
		if skip >= len(matched) {
			return []Doc{}, nil
		}
		matched = matched[skip:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// InsertOne implements Store.
func (s *PostgresStore) InsertOne(ctx context.Context, collection string, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, s.table(collection)),
		doc.ID(), raw,
	)
	return err
}

// UpdateOne implements Store.
func (s *PostgresStore) UpdateOne(ctx context.Context, collection string, filter Filter, update Doc) error {
	existing, err := s.FindOne(ctx, collection, filter)
	if err != nil {
		return err
	}
	for k, v := range update {
		existing[k] = v
	}
	raw, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = $1 WHERE id = $2`, s.table(collection)),
		raw, existing.ID(),
	)
	return err
}

// MutateOne implements Store. It locates the row by filter, then re-reads and
// row-locks it with SELECT ... FOR UPDATE inside a transaction before calling
// mutate and writing the result back, so a concurrent MutateOne against the
// same row blocks on the row lock instead of racing on a stale read.
func (s *PostgresStore) MutateOne(ctx context.Context, collection string, filter Filter, mutate func(Doc) (Doc, error)) (Doc, error) {
	existing, err := s.FindOne(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	id := existing.ID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw []byte
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1 FOR UPDATE`, s.table(collection)), id)
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var current Doc
	if err := json.Unmarshal(raw, &current); err != nil {
		return nil, err
	}

	updated, err := mutate(current)
	if err != nil {
		return nil, err
	}

	updatedRaw, err := json.Marshal(updated)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = $1 WHERE id = $2`, s.table(collection)), updatedRaw, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteOne implements Store.
func (s *PostgresStore) DeleteOne(ctx context.Context, collection string, filter Filter) error {
	existing, err := s.FindOne(ctx, collection, filter)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table(collection)),
		existing.ID(),
	)
	return err
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	docs, err := s.scan(ctx, collection, filter, nil, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Close implements Store, closing the pool only if this store created it.
func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
