//go:build linux && (arm || arm64)

package sysled

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "flightcore-sysled"

// outputLine is the part of a requested gpiocdev line the LED drives.
type outputLine interface {
	SetValue(v int) error
	Close() error
}

type gpioChip interface {
	FindLine(name string) (int, error)
	RequestOutput(offset int) (outputLine, error)
	Close() error
}

type cdevChip struct{ *gpiocdev.Chip }

func (c cdevChip) RequestOutput(offset int) (outputLine, error) {
	return c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
}

var (
	chipCandidates = listChips
	openChip       = func(path string) (gpioChip, error) {
		c, err := gpiocdev.NewChip(path)
		if err != nil {
			return nil, err
		}
		return cdevChip{c}, nil
	}
)

// listChips puts the configured chip first, then every /dev/gpiochip*.
func listChips(chip string) []string {
	var out []string
	if chip != "" {
		if !strings.HasPrefix(chip, "/") {
			chip = filepath.Join("/dev", chip)
		}
		out = append(out, chip)
	}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		p := filepath.Join("/dev", e.Name())
		if strings.HasPrefix(e.Name(), "gpiochip") && p != chip {
			out = append(out, p)
		}
	}
	return out
}

// Open requests BCM GPIO pin as an output on the first chip naming it
// "GPIO<pin>".
func Open(chip string, pin int) (Pin, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("sysled: invalid gpio pin %d", pin)
	}
	name := fmt.Sprintf("GPIO%d", pin)

	for _, path := range chipCandidates(chip) {
		c, err := openChip(path)
		if err != nil {
			continue
		}
		offset, err := c.FindLine(name)
		if err != nil {
			_ = c.Close()
			continue
		}
		line, err := c.RequestOutput(offset)
		if err != nil {
			_ = c.Close()
			continue
		}
		return &gpiodPin{chip: c, line: line}, nil
	}
	return nil, fmt.Errorf("sysled: gpio line %q not found (or busy)", name)
}

type gpiodPin struct {
	chip gpioChip
	line outputLine
}

func (g *gpiodPin) SetValue(v int) error {
	if g.line == nil {
		return fmt.Errorf("sysled: gpio line closed")
	}
	return g.line.SetValue(v)
}

// Close releases the line, then its chip. A second Close is a no-op.
func (g *gpiodPin) Close() error {
	if g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
