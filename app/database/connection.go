package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"PosPrint/app/config"
	"PosPrint/app/models"
)

var db *gorm.DB

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return db
}

// buildDSN constructs the database connection string from environment variables
// Priority: DATABASE_URL > individual variables (DB_HOST, DB_PORT, etc.) > defaults
func buildDSN() string {
	// Option 1: Check for complete DATABASE_URL first (highest priority)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		log.Printf("Using DATABASE_URL for database connection")
		return dsn
	}

	// Option 2: Build from individual environment variables
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")
	sslmode := os.Getenv("DB_SSLMODE")

	// Set defaults for development if not specified
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if user == "" {
		user = "postgres"
	}
	if password == "" {
		password = "postgres"
	}
	if dbname == "" {
		dbname = "posprint"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	// Build DSN from components
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	log.Printf("Built database connection from individual variables: host=%s port=%s dbname=%s sslmode=%s",
		host, port, dbname, sslmode)

	return dsn
}

// buildDSNFromConfig builds DSN from AppConfig
func buildDSNFromConfig(cfg *config.AppConfig) string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)

	log.Printf("Built database connection from config.json: host=%s port=%d dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.SSLMode)

	return dsn
}

// Initialize sets up the database connection
// If appConfig is provided, it uses config.json; otherwise uses environment variables
func Initialize() error {
	return InitializeWithConfig(nil)
}

// InitializeWithConfig sets up the database connection with optional AppConfig
func InitializeWithConfig(appConfig *config.AppConfig) error {
	var err error
	var dsn string

	// Build PostgreSQL connection string
	if appConfig != nil {
		dsn = buildDSNFromConfig(appConfig)
	} else {
		dsn = buildDSN()
	}

	// Configure GORM
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	}

	// Open connection
	db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL database
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Run migrations
	if err := RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Seed initial data
	if err := SeedInitialData(); err != nil {
		log.Printf("Warning: failed to seed initial data: %v", err)
	}

	return nil
}

// RunMigrations runs database migrations
func RunMigrations() error {
	err := db.AutoMigrate(
		&models.Transaction{},
		&models.TaxRate{},
		&models.ShopConfig{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	createIndexes()

	return nil
}

// createIndexes creates database indexes for better query performance
func createIndexes() {
	db.Exec("CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_tax_rates_key ON tax_rates(key)")
}

// SeedInitialData seeds initial configuration data
func SeedInitialData() error {
	// Default tax rates; keyed the way transaction tax maps reference them
	taxRates := []models.TaxRate{
		{Key: "1", Name: "GST", Value: 10},
		{Key: "2", Name: "VAT", Value: 20},
	}

	for _, rate := range taxRates {
		var count int64
		db.Model(&models.TaxRate{}).Where("key = ?", rate.Key).Count(&count)
		if count == 0 {
			db.Create(&rate)
		}
	}

	// Default shop configuration for receipt branding
	var shopCount int64
	db.Model(&models.ShopConfig{}).Count(&shopCount)
	if shopCount == 0 {
		db.Create(&models.ShopConfig{
			BizName:        "My Business",
			RecLine2:       "123 Example Street",
			RecFooter:      "Thank you for your business!",
			CurrencySymbol: "$",
		})
	}

	return nil
}

// Close closes the database connection
func Close() error {
	// Check if database is initialized
	if db == nil {
		return nil // Nothing to close
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction executes a function within a database transaction
func Transaction(fn func(*gorm.DB) error) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return db.Transaction(fn)
}
