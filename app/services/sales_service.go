package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"PosPrint/app/database"
	"PosPrint/app/models"
)

// SalesService looks up stored transactions for reprinting. Records are
// cached in the local database so receipts keep printing when the main
// database is unreachable.
type SalesService struct {
	db      *gorm.DB
	localDB *database.LocalDB
	logger  *LoggerService
}

// NewSalesService creates a sales lookup service.
func NewSalesService(db *gorm.DB, localDB *database.LocalDB, logger *LoggerService) *SalesService {
	return &SalesService{db: db, localDB: localDB, logger: logger}
}

// GetTransactionRecord resolves a transaction reference to its receipt
// record, falling back to the local cache when the main lookup fails.
func (s *SalesService) GetTransactionRecord(ref string) (*models.ReceiptRecord, error) {
	var tx models.Transaction
	err := s.db.Where("ref = ?", ref).First(&tx).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.LogWarning("Main database lookup failed, trying local cache", err.Error())
		}
		cached, cacheErr := s.localDB.GetCachedTransaction(ref)
		if cacheErr != nil {
			return nil, fmt.Errorf("transaction %s not found: %w", ref, err)
		}
		return cached.Record()
	}

	// Refresh the local cache on every successful lookup
	if cacheErr := s.localDB.CacheTransaction(&tx); cacheErr != nil {
		s.logger.LogWarning("Failed to cache transaction locally", cacheErr.Error())
	}

	return tx.Record()
}

// SaveTransaction stores a completed sale for later lookup.
func (s *SalesService) SaveTransaction(rec *models.ReceiptRecord) error {
	tx, err := models.NewTransaction(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize transaction: %w", err)
	}
	if err := s.db.Create(tx).Error; err != nil {
		return fmt.Errorf("failed to store transaction: %w", err)
	}
	if err := s.localDB.CacheTransaction(tx); err != nil {
		s.logger.LogWarning("Failed to cache transaction locally", err.Error())
	}
	return nil
}
