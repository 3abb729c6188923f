package agent

import (
	"fmt"
	"sync"

	"go.bug.st/serial"

	"PosPrint/app/models"
)

// PortManager owns the agent's serial ports. A port stays open across
// print jobs once an openport request succeeds; reopening with different
// settings closes the old handle first.
type PortManager struct {
	mu    sync.Mutex
	open  map[string]serial.Port
	modes map[string]models.SerialSettings
}

// NewPortManager creates an empty port registry.
func NewPortManager() *PortManager {
	return &PortManager{
		open:  make(map[string]serial.Port),
		modes: make(map[string]models.SerialSettings),
	}
}

// List enumerates the serial device names on this machine.
func (m *PortManager) List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens a serial port with the given settings.
func (m *PortManager) Open(name string, settings models.SerialSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.open[name]; ok {
		if m.modes[name] == settings {
			return nil
		}
		existing.Close()
		delete(m.open, name)
	}

	mode := &serial.Mode{
		BaudRate: settings.Baud,
		DataBits: settings.DataBits,
		Parity:   parityMode(settings.Parity),
		StopBits: stopBitsMode(settings.StopBits),
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return fmt.Errorf("failed to open port %s: %w", name, err)
	}

	m.open[name] = port
	m.modes[name] = settings
	return nil
}

// Write sends raw bytes to an opened port.
func (m *PortManager) Write(name string, data []byte) error {
	m.mu.Lock()
	port, ok := m.open[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("port %s is not open", name)
	}
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("failed to write to port %s: %w", name, err)
	}
	return nil
}

// CloseAll closes every open port.
func (m *PortManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, port := range m.open {
		port.Close()
		delete(m.open, name)
		delete(m.modes, name)
	}
}

func parityMode(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func stopBitsMode(bits int) serial.StopBits {
	switch bits {
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}
