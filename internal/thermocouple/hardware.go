package thermocouple

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// OpenSPI opens the shared bus on a host SPI port. The port's own chip
// select is disabled; channels are addressed through ChipSelect lines.
func OpenSPI(portName string, speedHz int64, mode int) (*Bus, spi.PortCloser, error) {
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spi port %q: %w", portName, err)
	}

	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode(mode)|spi.NoCS, 8)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("failed to configure spi port %q: %w", portName, err)
	}

	return NewBus(conn), port, nil
}

// ChipSelect looks up a GPIO by name and parks it high.
func ChipSelect(name string) (Select, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio not found: %s", name)
	}
	if err := pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to drive %s high: %w", name, err)
	}
	return pin, nil
}
