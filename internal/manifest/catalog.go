package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/router"
	"github.com/arkilian/partprune/pkg/types"
)

// Catalog manages relations and their partitions in the catalog database.
type Catalog interface {
	SchemeRepository

	// CreateRelation registers a partitioned relation with its children.
	CreateRelation(ctx context.Context, scheme *types.PartitionScheme) error

	// RegisterTable registers an ordinary, unpartitioned table.
	RegisterTable(ctx context.Context, id types.RelationID, name string) error

	// AttachPartition appends a child partition to a relation. bound is
	// required for range schemes and must start at the current last max.
	AttachPartition(ctx context.Context, id types.RelationID, child types.ChildRelation, bound *types.RangeBound) error

	// DropRelation removes a relation and all of its partitions.
	DropRelation(ctx context.Context, id types.RelationID) error

	// ListRelations returns every partitioned relation ordered by id.
	ListRelations(ctx context.Context) ([]*types.PartitionScheme, error)

	// Close closes the catalog database connection.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	notifier *router.Notifier
}

// NewCatalog creates a new SQLite-based catalog.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{
		db:     db,
		dbPath: dbPath,
	}

	// The schema must exist before a read-only connection can open the file.
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	catalog.readDB = readDB

	return catalog, nil
}

// SetNotifier publishes every committed change to n. Call before the
// catalog is shared.
func (c *SQLiteCatalog) SetNotifier(n *router.Notifier) {
	c.notifier = n
}

func (c *SQLiteCatalog) publish(t router.ChangeType, id types.RelationID, name string) {
	if c.notifier != nil {
		c.notifier.Publish(router.Notification{Type: t, Relation: id, Name: name})
	}
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// catalogError classifies a database error.
func catalogError(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrConstraint:
			return apperrors.NewCatalogError(apperrors.CodeRelationExists, op+": relation or child already exists", err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return apperrors.NewCatalogError(apperrors.CodeCatalogBusy, op+": catalog is busy", err)
		}
	}
	return apperrors.NewCatalogError(apperrors.CodeUnexpected, op, err)
}

func notFound(id types.RelationID) error {
	return apperrors.NewCatalogError(apperrors.CodeRelationNotFound, fmt.Sprintf("relation %d not found", id), nil)
}

// CreateRelation registers a partitioned relation with its children.
func (c *SQLiteCatalog) CreateRelation(ctx context.Context, scheme *types.PartitionScheme) error {
	if scheme.Relation == types.InvalidRelation {
		return apperrors.NewValidationError(apperrors.CodeInvalidScheme, "relation id must be non-zero")
	}
	if err := scheme.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidScheme, "invalid partition scheme", err)
	}
	s := scheme.Clone()
	if err := s.Normalize(); err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidBounds, "invalid partition bounds", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO relations (relation_id, name, key_column, key_type, strategy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Relation, s.Name, s.KeyColumn, string(s.KeyType), string(s.Strategy), now,
	)
	if err != nil {
		return catalogError("manifest: failed to insert relation", err)
	}

	for i, child := range s.Children {
		var bound *types.RangeBound
		if s.Strategy == types.StrategyRange {
			bound = &s.Bounds[i]
		}
		if err := insertPartitionTx(ctx, tx, s.Relation, s.KeyType, i, child, bound, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return catalogError("manifest: failed to commit relation", err)
	}
	c.publish(router.RelationCreated, s.Relation, s.Name)
	return nil
}

// insertPartitionTx inserts one partition row (must be called with lock held).
func insertPartitionTx(ctx context.Context, tx *sql.Tx, id types.RelationID, kt types.KeyType, index int, child types.ChildRelation, bound *types.RangeBound, now int64) error {
	var minValue, maxValue *string
	if bound != nil {
		lo, err := types.EncodeDatum(kt, bound.Min)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidBounds, "cannot encode bound", err)
		}
		hi, err := types.EncodeDatum(kt, bound.Max)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidBounds, "cannot encode bound", err)
		}
		minValue, maxValue = &lo, &hi
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO partitions (relation_id, partition_index, child_id, child_name, min_value, max_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, index, child.ID, child.Name, minValue, maxValue, now,
	)
	if err != nil {
		return catalogError("manifest: failed to insert partition", err)
	}
	return nil
}

// RegisterTable registers an ordinary, unpartitioned table.
func (c *SQLiteCatalog) RegisterTable(ctx context.Context, id types.RelationID, name string) error {
	if id == types.InvalidRelation || name == "" {
		return apperrors.NewValidationError(apperrors.CodeInvalidScheme, "table needs a non-zero id and a name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"INSERT INTO relations (relation_id, name, created_at) VALUES (?, ?, ?)",
		id, name, time.Now().Unix(),
	)
	if err != nil {
		return catalogError("manifest: failed to insert table", err)
	}
	c.publish(router.TableRegistered, id, name)
	return nil
}

// AttachPartition appends a child partition to a relation.
func (c *SQLiteCatalog) AttachPartition(ctx context.Context, id types.RelationID, child types.ChildRelation, bound *types.RangeBound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scheme, ok, err := loadScheme(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}

	index := len(scheme.Children)
	scheme.Children = append(scheme.Children, child)
	if scheme.Strategy == types.StrategyRange {
		if bound == nil {
			return apperrors.NewValidationError(apperrors.CodeInvalidBounds, "range partition requires a bound")
		}
		b := *bound
		b.Index = index
		scheme.Bounds = append(scheme.Bounds, b)
		bound = &scheme.Bounds[index]
	} else {
		bound = nil
	}
	if err := scheme.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidBounds, "partition does not extend the scheme", err)
	}

	if err := insertPartitionTx(ctx, tx, id, scheme.KeyType, index, child, bound, time.Now().Unix()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE relations SET version = version + 1 WHERE relation_id = ?", id); err != nil {
		return catalogError("manifest: failed to bump relation version", err)
	}
	if err := tx.Commit(); err != nil {
		return catalogError("manifest: failed to commit partition", err)
	}
	c.publish(router.PartitionAttached, id, scheme.Name)
	return nil
}

// DropRelation removes a relation and all of its partitions.
func (c *SQLiteCatalog) DropRelation(ctx context.Context, id types.RelationID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var name string
	err = tx.QueryRowContext(ctx, "SELECT name FROM relations WHERE relation_id = ?", id).Scan(&name)
	if err == sql.ErrNoRows {
		return notFound(id)
	}
	if err != nil {
		return catalogError("manifest: failed to look up relation", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM partitions WHERE relation_id = ?", id); err != nil {
		return catalogError("manifest: failed to delete partitions", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM relations WHERE relation_id = ?", id)
	if err != nil {
		return catalogError("manifest: failed to delete relation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return catalogError("manifest: failed to delete relation", err)
	}
	if n == 0 {
		return notFound(id)
	}
	if err := tx.Commit(); err != nil {
		return catalogError("manifest: failed to commit drop", err)
	}
	c.publish(router.RelationDropped, id, name)
	return nil
}

// LookupRelation resolves a table name case-insensitively.
func (c *SQLiteCatalog) LookupRelation(ctx context.Context, name string) (types.RelationID, bool, error) {
	var id types.RelationID
	err := c.readDB.QueryRowContext(ctx,
		"SELECT relation_id FROM relations WHERE name = ?", name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return types.InvalidRelation, false, nil
	}
	if err != nil {
		return types.InvalidRelation, false, catalogError("manifest: failed to look up relation", err)
	}
	return id, true, nil
}

// LookupScheme returns the partition scheme of a partitioned relation.
func (c *SQLiteCatalog) LookupScheme(ctx context.Context, id types.RelationID) (*types.PartitionScheme, bool, error) {
	return loadScheme(ctx, c.readDB, id)
}

// LookupBounds returns the range bounds of a range-partitioned relation.
func (c *SQLiteCatalog) LookupBounds(ctx context.Context, id types.RelationID) ([]types.RangeBound, bool, error) {
	s, ok, err := loadScheme(ctx, c.readDB, id)
	if err != nil || !ok || s.Strategy != types.StrategyRange {
		return nil, false, err
	}
	return s.Bounds, true, nil
}

// ListRelations returns every partitioned relation ordered by id.
func (c *SQLiteCatalog) ListRelations(ctx context.Context) ([]*types.PartitionScheme, error) {
	rows, err := c.readDB.QueryContext(ctx,
		"SELECT relation_id FROM relations WHERE strategy <> '' ORDER BY relation_id")
	if err != nil {
		return nil, catalogError("manifest: failed to list relations", err)
	}
	var ids []types.RelationID
	for rows.Next() {
		var id types.RelationID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, catalogError("manifest: failed to scan relation", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, catalogError("manifest: failed to list relations", err)
	}
	rows.Close()

	schemes := make([]*types.PartitionScheme, 0, len(ids))
	for _, id := range ids {
		s, ok, err := loadScheme(ctx, c.readDB, id)
		if err != nil {
			return nil, err
		}
		if ok {
			schemes = append(schemes, s)
		}
	}
	return schemes, nil
}

// RunAnalyze refreshes SQLite's statistics for the catalog tables.
func (c *SQLiteCatalog) RunAnalyze(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.ExecContext(ctx, AnalyzeSQL); err != nil {
		return catalogError("manifest: analyze failed", err)
	}
	return nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	var errs []string
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("manifest: close failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// querier is the read surface shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// loadScheme reads a relation and its partitions. Unpartitioned tables
// report false.
func loadScheme(ctx context.Context, q querier, id types.RelationID) (*types.PartitionScheme, bool, error) {
	var (
		name, keyColumn, keyType, strategy string
	)
	err := q.QueryRowContext(ctx,
		"SELECT name, key_column, key_type, strategy FROM relations WHERE relation_id = ?", id,
	).Scan(&name, &keyColumn, &keyType, &strategy)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, catalogError("manifest: failed to load relation", err)
	}
	if strategy == "" {
		return nil, false, nil
	}

	s := &types.PartitionScheme{
		Relation:  id,
		Name:      name,
		KeyColumn: keyColumn,
		KeyType:   types.KeyType(keyType),
		Strategy:  types.Strategy(strategy),
	}

	rows, err := q.QueryContext(ctx,
		`SELECT partition_index, child_id, child_name, min_value, max_value
		 FROM partitions WHERE relation_id = ? ORDER BY partition_index`, id)
	if err != nil {
		return nil, false, catalogError("manifest: failed to load partitions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			index              int
			child              types.ChildRelation
			minValue, maxValue sql.NullString
		)
		if err := rows.Scan(&index, &child.ID, &child.Name, &minValue, &maxValue); err != nil {
			return nil, false, catalogError("manifest: failed to scan partition", err)
		}
		s.Children = append(s.Children, child)
		if s.Strategy != types.StrategyRange {
			continue
		}
		if !minValue.Valid || !maxValue.Valid {
			return nil, false, apperrors.NewCatalogError(apperrors.CodeUnexpected,
				fmt.Sprintf("relation %d partition %d has no bounds", id, index), nil)
		}
		lo, err := types.DecodeDatum(s.KeyType, minValue.String)
		if err != nil {
			return nil, false, catalogError("manifest: failed to decode bound", err)
		}
		hi, err := types.DecodeDatum(s.KeyType, maxValue.String)
		if err != nil {
			return nil, false, catalogError("manifest: failed to decode bound", err)
		}
		s.Bounds = append(s.Bounds, types.RangeBound{Min: lo, Max: hi, Index: index})
	}
	if err := rows.Err(); err != nil {
		return nil, false, catalogError("manifest: failed to load partitions", err)
	}
	return s, true, nil
}
