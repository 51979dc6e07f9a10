package database

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"archives":          "Reclaimed room drawings",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	archiveColumns := map[string]string{
		"id":              "TEXT",
		"room_id":         "TEXT",
		"created_at":      "DATETIME",
		"reclaimed_at":    "DATETIME",
		"operation_count": "INTEGER",
		"operations":      "TEXT",
	}

	if err := v.validateColumns("archives", archiveColumns); err != nil {
		return fmt.Errorf("archives table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies that all lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_archives_room_time":    "Per-room archive listing",
		"idx_archives_reclaimed_at": "Global archive listing",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are properly enforced
// ARCHITECTURAL DISCOVERY: Constraint validation ensures data integrity rules
// are enforced at the database level
func (v *SchemaValidator) ValidateConstraints() error {
	now := time.Now()

	_, err := v.db.Exec(`
		INSERT INTO archives (id, room_id, created_at, reclaimed_at, operation_count, operations)
		VALUES ('constraint-test', 'room', ?, ?, -1, '[]')
	`, now, now)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM archives WHERE id = 'constraint-test'")
		return fmt.Errorf("check constraint not enforced: archives.operation_count")
	}

	_, err = v.db.Exec(`
		INSERT INTO archives (id, room_id, created_at, reclaimed_at, operation_count, operations)
		VALUES ('constraint-test', '', ?, ?, 0, '[]')
	`, now, now)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM archives WHERE id = 'constraint-test'")
		return fmt.Errorf("check constraint not enforced: archives.room_id")
	}

	return nil
}

// exists checks sqlite_master for an object of the given kind
func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
