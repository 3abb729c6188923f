package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"PosPrint/app/config"
	"PosPrint/app/database"
	"PosPrint/app/services"
	"PosPrint/app/transport"
)

// App wires the terminal-side services together.
type App struct {
	LoggerService   *services.LoggerService
	SettingsService *services.SettingsService
	SalesService    *services.SalesService
	PrintService    *services.PrintService
	isFirstRun      bool
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// Initialize loads configuration, connects the databases, and builds the
// service graph.
func (a *App) Initialize() error {
	a.LoggerService = services.NewLoggerService()

	// Load .env overrides if present
	if err := godotenv.Load(); err == nil {
		a.LoggerService.LogInfo("Loaded environment from .env file")
	}

	// Load or create the device configuration
	exists, err := config.ConfigExists()
	if err != nil {
		return fmt.Errorf("could not check configuration: %w", err)
	}
	var appConfig *config.AppConfig
	if exists {
		appConfig, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
	} else {
		a.LoggerService.LogInfo("First run, creating default configuration")
		appConfig, err = config.CreateDefaultConfig()
		if err != nil {
			return fmt.Errorf("could not create configuration: %w", err)
		}
		a.isFirstRun = true
	}

	// Connect the main database
	if err := database.InitializeWithConfig(appConfig); err != nil {
		a.LoggerService.LogWarning("Main database unavailable, continuing with local cache", err.Error())
		if err := database.Initialize(); err != nil {
			a.LoggerService.LogWarning("Environment database fallback also failed", err.Error())
		}
	}

	// Local cache database lives next to the config file
	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	localPath := filepath.Join(filepath.Dir(configPath), "local.db")
	if err := database.InitializeLocalDB(localPath); err != nil {
		return fmt.Errorf("could not initialize local database: %w", err)
	}

	a.SettingsService = services.NewSettingsService(database.GetDB(), a.LoggerService)
	a.SalesService = services.NewSalesService(database.GetDB(), database.GetLocalDB(), a.LoggerService)
	a.PrintService = services.NewPrintService(
		a.SettingsService,
		a.SalesService,
		database.GetLocalDB(),
		a.LoggerService,
		openBrowserSurface,
		nil,
	)
	a.PrintService.OnInstallPrompt = func() {
		fmt.Fprintln(os.Stderr, "The print agent is not reachable. Install or start it on the relay host and retry.")
	}
	a.PrintService.OnRelayPrinters = func(printers []string) {
		fmt.Println("Printers:", strings.Join(printers, ", "))
	}
	a.PrintService.OnRelayPorts = func(ports []string) {
		fmt.Println("Ports:", strings.Join(ports, ", "))
	}

	if err := a.PrintService.LoadPrintSettings(); err != nil {
		return fmt.Errorf("could not load print settings: %w", err)
	}

	if a.isFirstRun {
		if err := config.MarkSetupComplete(); err != nil {
			a.LoggerService.LogWarning("Could not mark setup complete", err.Error())
		}
	}

	return nil
}

// Shutdown releases connections.
func (a *App) Shutdown() {
	if a.PrintService != nil {
		a.PrintService.Close()
	}
	database.Close()
	if local := database.GetLocalDB(); local != nil {
		local.Close()
	}
	if a.LoggerService != nil {
		a.LoggerService.Close()
	}
}

// openBrowserSurface renders markup through the OS default browser, whose
// print dialog takes over from there. There is no print-finished signal, so
// the page stays open for the operator.
func openBrowserSurface() (transport.PrintSurface, error) {
	return &browserSurface{}, nil
}

type browserSurface struct {
	path string
}

func (s *browserSurface) Print(markup string) error {
	file, err := os.CreateTemp("", "receipt-*.html")
	if err != nil {
		return fmt.Errorf("could not create print page: %w", err)
	}
	if _, err := file.WriteString(markup); err != nil {
		file.Close()
		return fmt.Errorf("could not write print page: %w", err)
	}
	file.Close()
	s.path = file.Name()

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", s.path)
	case "darwin":
		cmd = exec.Command("open", s.path)
	default:
		cmd = exec.Command("xdg-open", s.path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not open print page: %w", err)
	}
	return nil
}

func (s *browserSurface) Done() <-chan struct{} { return nil }

func (s *browserSurface) Close() error {
	if s.path != "" {
		os.Remove(s.path)
	}
	return nil
}

// waitForAnswer gives asynchronous work (relay answers, logo fetches) time
// to finish before the process exits.
func waitForAnswer() {
	time.Sleep(2 * time.Second)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [args]

Commands:
  print <ref>      print the receipt for a stored transaction
  text <message>   print arbitrary text on the receipt printer
  report <file>    print an HTML report file through the document printer
  drawer           open the cash drawer
  test             print a test page on the receipt printer
  printers         list the relay companion's printers
  ports            list the relay companion's serial ports
`, os.Args[0])
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	app := NewApp()
	if err := app.Initialize(); err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer app.Shutdown()

	ok := true
	switch os.Args[1] {
	case "print":
		if len(os.Args) < 3 {
			usage()
		}
		ok = app.PrintService.PrintReceipt(os.Args[2])
		waitForAnswer()
	case "text":
		if len(os.Args) < 3 {
			usage()
		}
		ok = app.PrintService.PrintArbitraryText(strings.Join(os.Args[2:], " "))
	case "report":
		if len(os.Args) < 3 {
			usage()
		}
		body, err := os.ReadFile(os.Args[2])
		if err != nil {
			log.Fatalf("could not read report file: %v", err)
		}
		ok = app.PrintService.PrintCurrentReportDocument(string(body))
	case "drawer":
		ok = app.PrintService.OpenCashDrawer(false)
	case "test":
		ok = app.PrintService.TestReceiptPrinter()
		waitForAnswer()
	case "printers":
		if err := app.PrintService.RequestRelayPrinters(); err != nil {
			log.Fatalf("could not list printers: %v", err)
		}
		waitForAnswer()
	case "ports":
		if err := app.PrintService.RequestRelayPorts(); err != nil {
			log.Fatalf("could not list ports: %v", err)
		}
		waitForAnswer()
	default:
		usage()
	}

	if !ok {
		fmt.Fprintln(os.Stderr, "print failed; check the logs and printer configuration")
		os.Exit(1)
	}
}
