package thermocouple

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

var ErrNotResponding = errors.New("converter not responding")

// Conn is the full-duplex transfer half of a periph spi.Conn.
type Conn interface {
	Tx(w, r []byte) error
}

// Select is a chip select line. Converters are selected while the line is low.
type Select interface {
	Out(l gpio.Level) error
}

// Bus is one SPI bus shared by every channel. Chip select is driven manually
// so any number of converters can hang off a single port.
type Bus struct {
	conn         Conn
	mu           sync.Mutex
	transactions uint64
}

func NewBus(conn Conn) *Bus {
	return &Bus{conn: conn}
}

// Release drives a select line high so the converter leaves the bus alone
// until it is addressed.
func (b *Bus) Release(cs Select) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := cs.Out(gpio.High); err != nil {
		return fmt.Errorf("release chip select: %w", err)
	}
	return nil
}

// Tx asserts cs, runs one transfer and releases cs again before returning.
func (b *Bus) Tx(cs Select, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("assert chip select: %w", err)
	}

	b.transactions++
	txErr := b.conn.Tx(w, r)

	// CS muss immer freigegeben werden, auch nach Fehler
	var relErr error
	if err := cs.Out(gpio.High); err != nil {
		relErr = fmt.Errorf("release chip select: %w", err)
	}
	if txErr != nil {
		return errors.Join(fmt.Errorf("spi transfer failed: %w", txErr), relErr)
	}

	return relErr
}

// Transactions returns how many transfers have been started on the bus.
func (b *Bus) Transactions() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transactions
}
