// Package poller reads the inverter's input registers over Modbus/TCP.
//
// A Poll cycle opens one TCP connection, reads every register group in
// map order with a configurable inter-group delay, and returns the raw
// 16-bit words keyed by register name. Any failure fails the whole
// cycle; no partial result is returned. Consecutive failures grow a
// private exponential backoff that is slept off at the start of the
// next cycle.
package poller

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/goburrow/modbus"

	"github.com/sunspool/sunspool/internal/registers"
)

const (
	baseBackoff = 1 * time.Second
	// requestTimeout applies to each Modbus round-trip.
	requestTimeout = 10 * time.Second
)

// ErrStopped is returned when a backoff sleep is interrupted by shutdown.
var ErrStopped = errors.New("poller: stopped")

// Config holds the connection parameters for a Poller.
type Config struct {
	Host            string
	Port            int
	SlaveID         int
	InterGroupDelay time.Duration
	MaxBackoff      time.Duration
}

// Poller is a stateful Modbus/TCP reader with exponential backoff.
// It is used from a single goroutine (the daemon's poll loop).
type Poller struct {
	addr            string
	slaveID         byte
	interGroupDelay time.Duration
	maxBackoff      time.Duration
	regmap          *registers.Map
	stopCh          <-chan struct{}

	// nextDelay is slept before the next attempt after a failed cycle;
	// zero when the previous cycle succeeded.
	nextDelay time.Duration
	// backoff is the delay the next failure will schedule.
	backoff time.Duration
}

// New creates a Poller over the given register map. stopCh interrupts
// backoff sleeps on shutdown.
func New(cfg Config, regmap *registers.Map, stopCh <-chan struct{}) *Poller {
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	return &Poller{
		addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		slaveID:         byte(cfg.SlaveID),
		interGroupDelay: cfg.InterGroupDelay,
		maxBackoff:      maxBackoff,
		regmap:          regmap,
		stopCh:          stopCh,
		backoff:         baseBackoff,
	}
}

// Poll executes one read cycle and returns raw words keyed by register
// name. On any error the whole cycle fails and the backoff doubles; a
// successful cycle resets it to 1 s.
func (p *Poller) Poll() (map[string][]uint16, error) {
	if p.nextDelay > 0 {
		log.Printf("[poller] warning: backing off %s before retry", p.nextDelay)
		select {
		case <-time.After(p.nextDelay):
		case <-p.stopCh:
			return nil, ErrStopped
		}
	}

	raw, err := p.pollOnce()
	if err != nil {
		p.nextDelay = p.backoff
		p.backoff = min(p.backoff*2, p.maxBackoff)
		return nil, err
	}
	p.nextDelay = 0
	p.backoff = baseBackoff
	return raw, nil
}

func (p *Poller) pollOnce() (map[string][]uint16, error) {
	handler := modbus.NewTCPClientHandler(p.addr)
	handler.Timeout = requestTimeout
	handler.SlaveId = p.slaveID
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", p.addr, err)
	}
	defer handler.Close()

	client := modbus.NewClient(handler)
	raw := make(map[string][]uint16)
	for i, group := range p.regmap.Groups {
		if i > 0 && p.interGroupDelay > 0 {
			time.Sleep(p.interGroupDelay)
		}
		data, err := client.ReadInputRegisters(group.Start, group.Count)
		if err != nil {
			// Optional groups (the export register on some WiNet-S
			// firmwares) may answer with a Modbus exception; the rest
			// of the cycle proceeds without them. Transport errors
			// still fail the cycle.
			var mberr *modbus.ModbusError
			if group.Optional && errors.As(err, &mberr) {
				log.Printf("[poller] warning: optional group %q (addr=%d count=%d): %v, continuing without it",
					group.Name, group.Start, group.Count, err)
				continue
			}
			return nil, fmt.Errorf("read group %q (addr=%d count=%d): %w", group.Name, group.Start, group.Count, err)
		}
		words, err := decodeWords(data, int(group.Count))
		if err != nil {
			return nil, fmt.Errorf("read group %q: %w", group.Name, err)
		}
		sliceGroup(group, words, raw)
	}
	return raw, nil
}

// decodeWords splits a Modbus response payload into big-endian 16-bit
// words and checks the expected quantity.
func decodeWords(data []byte, count int) ([]uint16, error) {
	if len(data) != count*2 {
		return nil, fmt.Errorf("short response: got %d bytes, want %d", len(data), count*2)
	}
	words := make([]uint16, count)
	for i := range words {
		words[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return words, nil
}

// sliceGroup copies each register's word span out of the group read.
func sliceGroup(group registers.Group, words []uint16, out map[string][]uint16) {
	for _, reg := range group.Registers {
		offset := int(reg.Address) - int(group.Start)
		out[reg.Name] = words[offset : offset+reg.Words()]
	}
}
