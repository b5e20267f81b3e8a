package ncp

import (
	"fmt"
	"log/slog"

	"go.bug.st/serial"

	"zigbee-gadgets/internal/zcl"
)

// OpenSerial opens the adapter's serial port and wraps it in a HostLink.
func OpenSerial(portName string, baudRate int, reg *zcl.Registry, logger *slog.Logger, opts Options) (*HostLink, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		if ports, lerr := serial.GetPortsList(); lerr == nil {
			logger.Warn("available serial ports", "ports", ports)
		}
		return nil, fmt.Errorf("ncp: open %s: %w", portName, err)
	}

	// USB CDC ACM adapters expect DTR/RTS asserted.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)

	return NewHostLink(port, reg, logger, opts), nil
}
