// Package store persists downloaded archive records and Telegram deliveries in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	sqliteDriverNameConstant            = "sqlite"
	sqliteConnectionOptionsConstant     = "?_pragma=busy_timeout(5000)"
	databasePathRequiredMessageConstant = "database path must be provided"
	loggerNotConfiguredMessageConstant  = "logger not configured"
	openFailureTemplateConstant         = "failed to open database %s: %w"
	directoryFailureTemplateConstant    = "failed to create database directory %s: %w"
	schemaFailureTemplateConstant       = "failed to initialize schema: %w"
	queryFailureTemplateConstant        = "%s failed: %w"
	invalidTimestampTemplateConstant    = "invalid last_modified value %q for %s: %w"
	openingDatabaseMessageConstant      = "opening database"
	closingDatabaseMessageConstant      = "closing database"
	pathFieldNameConstant               = "path"
	pathColumnNameConstant              = "path"
	databaseDirectoryPermissions        = 0o755

	createFilesTableStatement = `CREATE TABLE IF NOT EXISTS files(
    link TEXT,
    last_modified TEXT,
    md5 TEXT,
    year_month TEXT,
    path TEXT
)`
	createDeliveriesTableStatement = `CREATE TABLE IF NOT EXISTS telegram_msgs(
    chat_id TEXT,
    md5 TEXT
)`
	filesColumnsStatement  = `SELECT name FROM pragma_table_info('files')`
	addPathColumnStatement = `ALTER TABLE files ADD COLUMN path TEXT`
	insertFileStatement    = `INSERT INTO files(link, last_modified, md5, year_month, path) VALUES (?, ?, ?, ?, ?)`
	findFileStatement      = `SELECT link, last_modified, md5, year_month, COALESCE(path, '')
FROM files
WHERE link = ? AND (md5 = ? OR last_modified = ?)`
	pendingFilesStatement = `SELECT f.link, f.last_modified, f.md5, f.year_month, COALESCE(f.path, '')
FROM files AS f
LEFT JOIN telegram_msgs AS msg ON f.md5 = msg.md5 AND msg.chat_id = ?
WHERE msg.md5 IS NULL
ORDER BY CAST(f.last_modified AS INTEGER) ASC, f.rowid ASC`
	insertDeliveryStatement = `INSERT INTO telegram_msgs(chat_id, md5) VALUES (?, ?)`

	addFileOperationConstant      = "add file"
	findFileOperationConstant     = "find file"
	pendingFilesOperationConstant = "list pending files"
	addDeliveryOperationConstant  = "add delivery"
)

// ErrDatabasePathRequired indicates Open was called without a database path.
var ErrDatabasePathRequired = errors.New(databasePathRequiredMessageConstant)

// ErrLoggerNotConfigured indicates Open was called without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// FileRecord is one downloaded archive version.
type FileRecord struct {
	Link string
	// LastModified is the server modification time in Unix seconds.
	LastModified int64
	MD5          string
	YearMonth    string
	// Path is the archive location relative to the data directory, slash separated.
	// Records written before the column existed leave it empty.
	Path string
}

// Store wraps the archive database.
type Store struct {
	database *sql.DB
	path     string
	logger   *zap.Logger
}

// Open opens (creating if needed) the database at databasePath and ensures the schema exists.
func Open(executionContext context.Context, databasePath string, logger *zap.Logger) (*Store, error) {
	trimmedPath := strings.TrimSpace(databasePath)
	if len(trimmedPath) == 0 {
		return nil, ErrDatabasePathRequired
	}
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	directory := filepath.Dir(trimmedPath)
	if mkdirError := os.MkdirAll(directory, databaseDirectoryPermissions); mkdirError != nil {
		return nil, fmt.Errorf(directoryFailureTemplateConstant, directory, mkdirError)
	}

	logger.Debug(openingDatabaseMessageConstant, zap.String(pathFieldNameConstant, trimmedPath))
	database, openError := sql.Open(sqliteDriverNameConstant, trimmedPath+sqliteConnectionOptionsConstant)
	if openError != nil {
		return nil, fmt.Errorf(openFailureTemplateConstant, trimmedPath, openError)
	}
	database.SetMaxOpenConns(1)

	if schemaError := ensureSchema(executionContext, database); schemaError != nil {
		_ = database.Close()
		return nil, fmt.Errorf(schemaFailureTemplateConstant, schemaError)
	}

	return &Store{database: database, path: trimmedPath, logger: logger}, nil
}

// Path returns the database file location.
func (store *Store) Path() string {
	return store.path
}

// Close releases the database handle.
func (store *Store) Close() error {
	store.logger.Debug(closingDatabaseMessageConstant, zap.String(pathFieldNameConstant, store.path))
	return store.database.Close()
}

// AddFile records a downloaded archive version.
func (store *Store) AddFile(executionContext context.Context, record FileRecord) error {
	_, execError := store.database.ExecContext(executionContext, insertFileStatement,
		record.Link,
		strconv.FormatInt(record.LastModified, 10),
		record.MD5,
		record.YearMonth,
		record.Path,
	)
	if execError != nil {
		return fmt.Errorf(queryFailureTemplateConstant, addFileOperationConstant, execError)
	}
	return nil
}

// FindFile returns the recorded versions of link matching either the checksum or the modification time.
func (store *Store) FindFile(executionContext context.Context, link string, lastModified int64, md5 string) ([]FileRecord, error) {
	rows, queryError := store.database.QueryContext(executionContext, findFileStatement, link, md5, strconv.FormatInt(lastModified, 10))
	if queryError != nil {
		return nil, fmt.Errorf(queryFailureTemplateConstant, findFileOperationConstant, queryError)
	}
	return scanFileRecords(rows, findFileOperationConstant)
}

// PendingFiles lists archives whose checksum has not been delivered to chatID, oldest first.
func (store *Store) PendingFiles(executionContext context.Context, chatID string) ([]FileRecord, error) {
	rows, queryError := store.database.QueryContext(executionContext, pendingFilesStatement, chatID)
	if queryError != nil {
		return nil, fmt.Errorf(queryFailureTemplateConstant, pendingFilesOperationConstant, queryError)
	}
	return scanFileRecords(rows, pendingFilesOperationConstant)
}

// AddDelivery records that the archive with checksum md5 was delivered to chatID.
func (store *Store) AddDelivery(executionContext context.Context, chatID string, md5 string) error {
	if _, execError := store.database.ExecContext(executionContext, insertDeliveryStatement, chatID, md5); execError != nil {
		return fmt.Errorf(queryFailureTemplateConstant, addDeliveryOperationConstant, execError)
	}
	return nil
}

// ensureSchema creates missing tables and adds the path column to databases created without it.
func ensureSchema(executionContext context.Context, database *sql.DB) error {
	for _, statement := range []string{createFilesTableStatement, createDeliveriesTableStatement} {
		if _, execError := database.ExecContext(executionContext, statement); execError != nil {
			return execError
		}
	}

	rows, queryError := database.QueryContext(executionContext, filesColumnsStatement)
	if queryError != nil {
		return queryError
	}
	defer rows.Close()
	hasPath := false
	for rows.Next() {
		var columnName string
		if scanError := rows.Scan(&columnName); scanError != nil {
			return scanError
		}
		if columnName == pathColumnNameConstant {
			hasPath = true
		}
	}
	if rowsError := rows.Err(); rowsError != nil {
		return rowsError
	}
	rows.Close()
	if hasPath {
		return nil
	}
	_, alterError := database.ExecContext(executionContext, addPathColumnStatement)
	return alterError
}

func scanFileRecords(rows *sql.Rows, operation string) ([]FileRecord, error) {
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var record FileRecord
		var lastModified string
		if scanError := rows.Scan(&record.Link, &lastModified, &record.MD5, &record.YearMonth, &record.Path); scanError != nil {
			return nil, fmt.Errorf(queryFailureTemplateConstant, operation, scanError)
		}
		parsed, parseError := strconv.ParseInt(strings.TrimSpace(lastModified), 10, 64)
		if parseError != nil {
			return nil, fmt.Errorf(invalidTimestampTemplateConstant, lastModified, record.Link, parseError)
		}
		record.LastModified = parsed
		records = append(records, record)
	}
	if rowsError := rows.Err(); rowsError != nil {
		return nil, fmt.Errorf(queryFailureTemplateConstant, operation, rowsError)
	}
	return records, nil
}
