package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// PrinterManager lists the system printers and hands jobs to the OS
// spooler. Raw jobs bypass the driver so ESC/P control bytes survive.
type PrinterManager struct{}

// NewPrinterManager creates a printer manager.
func NewPrinterManager() *PrinterManager {
	return &PrinterManager{}
}

// List returns the installed printer names.
func (m *PrinterManager) List() ([]string, error) {
	switch runtime.GOOS {
	case "windows":
		return listWindowsPrinters()
	case "linux", "darwin":
		return listCUPSPrinters()
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// listWindowsPrinters queries the spooler via PowerShell.
func listWindowsPrinters() ([]string, error) {
	cmd := exec.Command("powershell", "-Command",
		`Get-Printer | Select-Object -ExpandProperty Name`)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}

	var names []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// listCUPSPrinters parses lpstat output.
func listCUPSPrinters() ([]string, error) {
	cmd := exec.Command("lpstat", "-p")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to list printers (is CUPS installed?): %w", err)
	}

	var names []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		// Printer lines look like "printer NAME is idle. ..."
		if strings.HasPrefix(line, "printer ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				names = append(names, fields[1])
			}
		}
	}
	return names, nil
}

// PrintRaw spools raw printer bytes to a named printer.
func (m *PrinterManager) PrintRaw(printer string, data []byte) error {
	path, err := spoolFile("raw-*.prn", data)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	switch runtime.GOOS {
	case "windows":
		// copy /b preserves control bytes on the way to a shared printer
		cmd := exec.Command("cmd", "/c", "copy", "/b", path, `\\localhost\`+printer)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to spool raw job: %w (%s)", err, strings.TrimSpace(string(output)))
		}
		return nil
	case "linux", "darwin":
		cmd := exec.Command("lp", "-d", printer, "-o", "raw", path)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to spool raw job: %w (%s)", err, strings.TrimSpace(string(output)))
		}
		return nil
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// PrintHTML spools rendered markup through the printer driver.
func (m *PrinterManager) PrintHTML(printer, markup string) error {
	path, err := spoolFile("doc-*.html", []byte(markup))
	if err != nil {
		return err
	}
	defer os.Remove(path)

	switch runtime.GOOS {
	case "windows":
		cmd := exec.Command("powershell", "-Command",
			fmt.Sprintf(`Start-Process -FilePath %q -Verb PrintTo -ArgumentList %q -Wait`, path, printer))
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to print document: %w (%s)", err, strings.TrimSpace(string(output)))
		}
		return nil
	case "linux", "darwin":
		cmd := exec.Command("lp", "-d", printer, path)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to print document: %w (%s)", err, strings.TrimSpace(string(output)))
		}
		return nil
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// spoolFile writes a job to a temp file for the OS print command.
func spoolFile(pattern string, data []byte) (string, error) {
	file, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to close spool file: %w", err)
	}
	return file.Name(), nil
}

// cleanSpoolDir removes stale spool files left by crashed jobs.
func cleanSpoolDir(olderThan time.Duration) {
	dir := os.TempDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-olderThan)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "raw-") && !strings.HasPrefix(name, "doc-") {
			continue
		}
		if !strings.HasSuffix(name, ".prn") && !strings.HasSuffix(name, ".html") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}
