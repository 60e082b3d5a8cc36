// Package manifest is the partition catalog: the relations that are
// partitioned, their child partitions and the range bounds of each child.
package manifest

// CreateRelationsTableSQL creates the relations table. A relation with an
// empty strategy is an ordinary table known to the catalog.
const CreateRelationsTableSQL = `
CREATE TABLE IF NOT EXISTS relations (
    relation_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE COLLATE NOCASE,
    key_column TEXT NOT NULL DEFAULT '',
    key_type TEXT NOT NULL DEFAULT '',
    strategy TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
)`

// CreatePartitionsTableSQL creates the partitions table. Bounds are stored
// in their text encoding; hash partitions have none.
const CreatePartitionsTableSQL = `
CREATE TABLE IF NOT EXISTS partitions (
    relation_id INTEGER NOT NULL,
    partition_index INTEGER NOT NULL,
    child_id INTEGER NOT NULL UNIQUE,
    child_name TEXT NOT NULL,
    min_value TEXT,
    max_value TEXT,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (relation_id, partition_index),
    FOREIGN KEY (relation_id) REFERENCES relations(relation_id)
)`

// CreatePartitionsIndexesSQL creates the lookup indexes of the partitions table.
var CreatePartitionsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_partitions_child_name ON partitions(child_name)`,
}

// AnalyzeSQL refreshes SQLite's index statistics.
const AnalyzeSQL = `ANALYZE`

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{
		CreateRelationsTableSQL,
		CreatePartitionsTableSQL,
	}
	statements = append(statements, CreatePartitionsIndexesSQL...)
	return statements
}
