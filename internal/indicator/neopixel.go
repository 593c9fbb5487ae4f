package indicator

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
)

// pixelWriter is the part of nrzled.Dev the indicator needs.
type pixelWriter interface {
	Write(pixels []byte) (int, error)
	Halt() error
}

// NeoPixel drives one WS2812 pixel through the NRZ encoder on an SPI port.
type NeoPixel struct {
	dev        pixelWriter
	port       spi.PortCloser
	brightness uint8
}

// OpenNeoPixel opens portName and attaches a one-pixel NRZ LED strip to it.
// Brightness scales every channel, 255 is full output.
func OpenNeoPixel(portName string, brightness uint8) (*NeoPixel, error) {
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open indicator port %q: %w", portName, err)
	}

	n, err := newNeoPixel(port, brightness)
	if err != nil {
		port.Close()
		return nil, err
	}
	return n, nil
}

func newNeoPixel(port spi.PortCloser, brightness uint8) (*NeoPixel, error) {
	opts := nrzled.DefaultOpts
	opts.NumPixels = 1
	opts.Channels = 3
	// SPI-Takt für die NRZ-Kodierung, nicht die 800 kHz Datenrate
	opts.Freq = 2500 * physic.KiloHertz

	dev, err := nrzled.NewSPI(port, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create nrzled device: %w", err)
	}

	return &NeoPixel{dev: dev, port: port, brightness: brightness}, nil
}

func (n *NeoPixel) SetColor(c Color) error {
	r, g, b := c.RGB()
	pixel := []byte{n.scale(r), n.scale(g), n.scale(b)}

	if _, err := n.dev.Write(pixel); err != nil {
		return fmt.Errorf("failed to write pixel %s: %w", c, err)
	}
	return nil
}

func (n *NeoPixel) scale(v uint8) uint8 {
	return uint8(uint16(v) * uint16(n.brightness) / 255)
}

// Close switches the pixel off and releases the port.
func (n *NeoPixel) Close() error {
	if err := n.dev.Halt(); err != nil {
		n.port.Close()
		return fmt.Errorf("failed to halt indicator: %w", err)
	}
	return n.port.Close()
}
