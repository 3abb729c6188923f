package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"PosPrint/app/models"
)

// LocalDB manages the local SQLite database. It caches transaction records
// so receipts can be reprinted while the main database is unreachable, and
// keeps a log of print attempts for troubleshooting.
type LocalDB struct {
	db          *gorm.DB
	isConnected bool
	dbPath      string
}

var localDB *LocalDB

// InitializeLocalDB initializes the local SQLite database
func InitializeLocalDB(dbPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open SQLite connection (CGO-free driver)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})

	if err != nil {
		return fmt.Errorf("failed to connect to local database: %w", err)
	}

	localDB = &LocalDB{
		db:          db,
		isConnected: true,
		dbPath:      dbPath,
	}

	// Run migrations for local tables
	if err := localDB.runMigrations(); err != nil {
		return fmt.Errorf("failed to run local migrations: %w", err)
	}

	return nil
}

// GetLocalDB returns the local database instance
func GetLocalDB() *LocalDB {
	if localDB == nil {
		InitializeLocalDB("./data/local.db")
	}
	return localDB
}

// runMigrations creates necessary tables in local database
func (l *LocalDB) runMigrations() error {
	return l.db.AutoMigrate(
		&CachedTransaction{},
		&PrintLog{},
	)
}

// CachedTransaction caches a transaction record for offline reprinting
type CachedTransaction struct {
	ID         uint      `gorm:"primaryKey"`
	Ref        string    `gorm:"unique" json:"ref"`
	Data       string    `gorm:"type:text" json:"data"` // JSON serialized record
	LastSynced time.Time `json:"last_synced"`
}

// PrintLog records the outcome of a print attempt
type PrintLog struct {
	ID        uint      `gorm:"primaryKey"`
	Ref       string    `json:"ref"`
	Method    string    `json:"method"` // print method used
	Kind      string    `json:"kind"`   // receipt, document, drawer, test
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	PrintedAt time.Time `json:"printed_at"`
}

// CacheTransaction stores a transaction record locally, replacing any
// previous copy of the same reference
func (l *LocalDB) CacheTransaction(tx *models.Transaction) error {
	cached := CachedTransaction{
		Ref:        tx.Ref,
		Data:       tx.Data,
		LastSynced: time.Now(),
	}
	return l.db.Where("ref = ?", tx.Ref).
		Assign(map[string]interface{}{"data": cached.Data, "last_synced": cached.LastSynced}).
		FirstOrCreate(&cached).Error
}

// GetCachedTransaction looks up a locally cached transaction by reference
func (l *LocalDB) GetCachedTransaction(ref string) (*models.Transaction, error) {
	var cached CachedTransaction
	if err := l.db.Where("ref = ?", ref).First(&cached).Error; err != nil {
		return nil, err
	}
	return &models.Transaction{Ref: cached.Ref, Data: cached.Data}, nil
}

// LogPrint records a print attempt
func (l *LocalDB) LogPrint(ref, method, kind string, success bool, printErr error) {
	entry := PrintLog{
		Ref:       ref,
		Method:    method,
		Kind:      kind,
		Success:   success,
		PrintedAt: time.Now(),
	}
	if printErr != nil {
		entry.Error = printErr.Error()
	}
	l.db.Create(&entry)
}

// GetRecentPrintLogs returns the latest print attempts
func (l *LocalDB) GetRecentPrintLogs(limit int) ([]PrintLog, error) {
	var logs []PrintLog
	err := l.db.Order("printed_at desc").Limit(limit).Find(&logs).Error
	return logs, err
}

// ClearOldData removes cached records and logs older than specified days
func (l *LocalDB) ClearOldData(daysOld int) error {
	cutoffDate := time.Now().AddDate(0, 0, -daysOld)

	if err := l.db.Where("last_synced < ?", cutoffDate).Delete(&CachedTransaction{}).Error; err != nil {
		return err
	}

	if err := l.db.Where("printed_at < ?", cutoffDate).Delete(&PrintLog{}).Error; err != nil {
		return err
	}

	return nil
}

// GetDB returns the underlying database connection
func (l *LocalDB) GetDB() *gorm.DB {
	return l.db
}

// Close closes the local database connection
func (l *LocalDB) Close() error {
	if l.db != nil {
		sqlDB, err := l.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// IsOfflineMode checks if the main database is reachable
func (l *LocalDB) IsOfflineMode() bool {
	mainDB := GetDB()
	if mainDB == nil {
		return true
	}

	// Try a simple query
	var count int64
	if err := mainDB.Model(&models.ShopConfig{}).Count(&count).Error; err != nil {
		return true
	}

	return false
}

// Transaction executes a function within a database transaction
func (l *LocalDB) Transaction(fn func(*gorm.DB) error) error {
	return l.db.Transaction(fn)
}
