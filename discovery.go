package armcore

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial/enumerator"

	"go.viam.com/rdk/logging"
)

// DiscoverPorts scans serial ports for an attached arm: enumerate
// everything, filter to USB serial naming patterns, then probe each
// candidate with a sync read of the first joint servo. Probing stops
// early if ctx is cancelled.
func DiscoverPorts(ctx context.Context, baudRate int, logger logging.Logger) []string {
	all := enumerateSerialPorts()
	logger.Debugf("found %d serial ports", len(all))

	candidates := filterCandidatePorts(all)
	logger.Debugf("filtered to %d candidate ports", len(candidates))

	var found []string
	for _, port := range candidates {
		select {
		case <-ctx.Done():
			logger.Infof("discovery cancelled")
			return found
		default:
		}
		if probePort(ctx, port, baudRate, logger) {
			logger.Infof("arm detected on %s", port)
			found = append(found, port)
		}
	}
	return found
}

// probePort opens the bus and sync-reads the first joint servo. A
// response means an arm is listening.
func probePort(ctx context.Context, port string, baudRate int, logger logging.Logger) bool {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		logger.Debugf("failed to open %s: %v", port, err)
		return false
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Debugf("closing %s: %v", port, err)
		}
	}()

	group := feetech.NewServoGroupByIDs(bus, DefaultServoIDs[0])
	positions, err := group.Positions(ctx)
	if err != nil {
		logger.Debugf("no servo response on %s: %v", port, err)
		return false
	}
	_, ok := positions[DefaultServoIDs[0]]
	return ok
}

func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks platform-specific USB serial naming patterns.
func isCandidatePort(port string) bool {
	// Linux
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS
	if strings.HasPrefix(port, "/dev/tty.usbmodem") || strings.HasPrefix(port, "/dev/tty.usbserial") ||
		strings.HasPrefix(port, "/dev/cu.usbmodem") || strings.HasPrefix(port, "/dev/cu.usbserial") {
		return true
	}
	// Windows
	return strings.HasPrefix(port, "COM")
}

// extractPortSuffix makes a friendly name from a port path: /dev/ttyUSB0
// becomes "ttyUSB0", /dev/tty.usbmodem123 becomes "usbmodem123".
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)
	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}

func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}
	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
