package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"PosPrint/app/models"
	"PosPrint/app/security"
)

// AppConfig holds all terminal-local configuration
type AppConfig struct {
	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// Printer and transport configuration
	Printer models.PrinterConfig `json:"printer"`

	// Host platform, used to gate transport options
	Platform models.Platform `json:"platform"`

	// Relay session state
	Relay RelayConfig `json:"relay"`

	// First run flag
	FirstRun bool `json:"first_run"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// RelayConfig holds the relay agent session settings. The session cookie is
// encrypted at rest.
type RelayConfig struct {
	SessionCookie string `json:"session_cookie"`
	ExactlyOnce   bool   `json:"exactly_once"` // suppress duplicate resend delivery
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	// Get user's AppData directory
	appData := os.Getenv("APPDATA")
	if appData == "" {
		// Fallback to user's home directory
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		appData = filepath.Join(homeDir, "AppData", "Roaming")
	}

	// Create PosPrint directory if it doesn't exist
	configDir := filepath.Join(appData, "PosPrint")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// LoadConfig loads configuration from config.json and decrypts sensitive fields
func LoadConfig() (*AppConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found")
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	// Parse JSON
	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	// Decrypt sensitive fields
	if err := cfg.decryptSensitiveFields(); err != nil {
		return nil, fmt.Errorf("could not decrypt sensitive fields: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves configuration to config.json after encrypting sensitive fields
func SaveConfig(cfg *AppConfig) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Create a copy to avoid modifying the original
	cfgCopy := *cfg

	// Encrypt sensitive fields in the copy
	if err := cfgCopy.encryptSensitiveFields(); err != nil {
		return fmt.Errorf("could not encrypt sensitive fields: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(&cfgCopy, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	// Write to file with restrictive permissions
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}

	return nil
}

// ConfigExists checks if config file exists
func ConfigExists() (bool, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(configPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// CreateDefaultConfig creates a default configuration file
func CreateDefaultConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "pos_print_db",
			Username: "postgres",
			Password: "",
			SSLMode:  "disable",
		},
		Printer: models.PrinterConfig{
			ReceiptMethod: models.MethodBrowser,
			DocMethod:     models.MethodBrowser,
			RecType:       models.RecTypeRaw,
			RecSerial: models.SerialSettings{
				Baud:     9600,
				DataBits: 8,
				StopBits: 1,
				Parity:   "none",
				Flow:     "none",
			},
			RelayPort: 8080,
		},
		FirstRun: true,
	}

	// Save default config
	if err := SaveConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdatePrinterConfig persists a chosen print configuration
func UpdatePrinterConfig(printer models.PrinterConfig) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	cfg.Printer = printer
	return SaveConfig(cfg)
}

// UpdateSessionCookie persists the relay session cookie
func UpdateSessionCookie(cookie string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	cfg.Relay.SessionCookie = cookie
	return SaveConfig(cfg)
}

// MarkSetupComplete marks the first run as complete
func MarkSetupComplete() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	cfg.FirstRun = false
	return SaveConfig(cfg)
}

// encryptSensitiveFields encrypts sensitive configuration fields
func (cfg *AppConfig) encryptSensitiveFields() error {
	var err error

	// Encrypt database password
	if cfg.Database.Password != "" {
		cfg.Database.Password, err = security.Encrypt(cfg.Database.Password)
		if err != nil {
			return fmt.Errorf("could not encrypt database password: %w", err)
		}
	}

	// Encrypt relay session cookie
	if cfg.Relay.SessionCookie != "" {
		cfg.Relay.SessionCookie, err = security.Encrypt(cfg.Relay.SessionCookie)
		if err != nil {
			return fmt.Errorf("could not encrypt session cookie: %w", err)
		}
	}

	return nil
}

// decryptSensitiveFields decrypts sensitive configuration fields
// If a field is not encrypted (plain text), it leaves it as-is (useful for development)
func (cfg *AppConfig) decryptSensitiveFields() error {
	// Decrypt database password
	if cfg.Database.Password != "" {
		decrypted, err := security.Decrypt(cfg.Database.Password)
		if err != nil {
			// If decryption fails, assume it's plain text (for development)
			// In production, values should always be encrypted
			decrypted = cfg.Database.Password
		}
		cfg.Database.Password = decrypted
	}

	// Decrypt relay session cookie
	if cfg.Relay.SessionCookie != "" {
		decrypted, err := security.Decrypt(cfg.Relay.SessionCookie)
		if err != nil {
			// If decryption fails, assume it's plain text
			decrypted = cfg.Relay.SessionCookie
		}
		cfg.Relay.SessionCookie = decrypted
	}

	return nil
}
