package services

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"PosPrint/app/config"
	"PosPrint/app/models"
	"PosPrint/app/receipt"
)

// SettingsService owns the terminal's print configuration: the local
// device config file (printer/transport selection, relay session) and the
// shared shop branding and tax table in the main database.
type SettingsService struct {
	db     *gorm.DB
	logger *LoggerService

	mu  sync.Mutex
	cfg *config.AppConfig
}

// NewSettingsService creates a settings service over the main database.
func NewSettingsService(db *gorm.DB, logger *LoggerService) *SettingsService {
	return &SettingsService{db: db, logger: logger}
}

// Load reads the device config file, creating the default on first run.
func (s *SettingsService) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := config.ConfigExists()
	if err != nil {
		return fmt.Errorf("failed to check config: %w", err)
	}
	if !exists {
		s.logger.LogInfo("No device config found, creating default")
		cfg, err := config.CreateDefaultConfig()
		if err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
		s.cfg = cfg
		return nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	s.cfg = cfg
	return nil
}

// PrinterConfig returns the current print configuration.
func (s *SettingsService) PrinterConfig() models.PrinterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return models.PrinterConfig{ReceiptMethod: models.MethodBrowser}
	}
	return s.cfg.Printer
}

// Platform returns the host platform descriptor.
func (s *SettingsService) Platform() models.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return models.Platform{}
	}
	return s.cfg.Platform
}

// ExactlyOnce reports whether duplicate relay resends should be suppressed.
func (s *SettingsService) ExactlyOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg != nil && s.cfg.Relay.ExactlyOnce
}

// SavePrinterConfig persists a chosen print configuration.
func (s *SettingsService) SavePrinterConfig(printer models.PrinterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return fmt.Errorf("settings not loaded")
	}
	s.cfg.Printer = printer
	if err := config.SaveConfig(s.cfg); err != nil {
		s.logger.LogError("Failed to save printer config", err)
		return err
	}
	s.logger.LogInfo("Printer configuration saved", printer.ReceiptMethod)
	return nil
}

// LoadCookie returns the persisted relay session cookie, implementing the
// relay session store.
func (s *SettingsService) LoadCookie() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return ""
	}
	return s.cfg.Relay.SessionCookie
}

// SaveCookie persists the relay session cookie across restarts.
func (s *SettingsService) SaveCookie(cookie string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return
	}
	s.cfg.Relay.SessionCookie = cookie
	if err := config.SaveConfig(s.cfg); err != nil {
		s.logger.LogError("Failed to persist relay session cookie", err)
	}
}

// ShopConfig loads the receipt branding configuration.
func (s *SettingsService) ShopConfig() (*models.ShopConfig, error) {
	var shop models.ShopConfig
	if err := s.db.First(&shop).Error; err != nil {
		return nil, fmt.Errorf("failed to load shop config: %w", err)
	}
	return &shop, nil
}

// SaveShopConfig persists the receipt branding configuration.
func (s *SettingsService) SaveShopConfig(shop *models.ShopConfig) error {
	if err := s.db.Save(shop).Error; err != nil {
		s.logger.LogError("Failed to save shop config", err)
		return err
	}
	return nil
}

// TaxLookup builds a tax table lookup for the document builder. Rates are
// read once; receipts within one print call see a consistent table.
func (s *SettingsService) TaxLookup() receipt.TaxLookup {
	var rates []models.TaxRate
	if err := s.db.Where("is_active = ?", true).Find(&rates).Error; err != nil {
		s.logger.LogError("Failed to load tax rates", err)
		return func(key string) (string, float64, bool) { return "", 0, false }
	}

	table := make(map[string]models.TaxRate, len(rates))
	for _, rate := range rates {
		table[rate.Key] = rate
	}
	return func(key string) (string, float64, bool) {
		rate, ok := table[key]
		if !ok {
			return "", 0, false
		}
		return rate.Name, rate.Value, true
	}
}
