// Package ashdome drives the dome's stepper motor controller over a
// point-to-point serial line. Commands are framed ASCII with a one-byte
// checksum; the controller acknowledges each frame before optionally
// returning a value line.
package ashdome

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const (
	ack        = 0x06
	rebootByte = 0x03
	frameByte  = '\n'

	// The controller needs a few seconds after a reboot before it will
	// accept commands.
	rebootDelay = 5 * time.Second
	settleDelay = 100 * time.Millisecond
	retryDelay  = time.Second
)

var (
	errNAK        = errors.New("controller sent NAK")
	errChecksum   = errors.New("reply checksum mismatch")
	errTimeout    = errors.New("read timed out")
	errShortReply = errors.New("reply shorter than checksum")
)

// port is the slice of *serial.Port the link uses; tests substitute an
// in-memory implementation.
type port interface {
	io.ReadWriteCloser
	Flush() error
}

type Config struct {
	Port    string
	Baud    int
	Timeout time.Duration
	Retries int
}

// Controller is a live link to the motor controller. All methods must be
// called from a single goroutine.
type Controller struct {
	p       port
	retries int
	log     *zap.SugaredLogger
}

// Open opens the serial port and reboots the controller so that it starts
// from a known state.
func Open(cfg Config, log *zap.SugaredLogger) (*Controller, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", cfg.Port, err)
	}
	c := &Controller{p: p, retries: cfg.Retries, log: log}
	p.Flush()
	if _, err := p.Write([]byte{rebootByte}); err != nil {
		p.Close()
		return nil, fmt.Errorf("rebooting controller: %w", err)
	}
	time.Sleep(rebootDelay)
	return c, nil
}

func (c *Controller) Close() error {
	return c.p.Close()
}

// checksum computes the controller's one-byte frame checksum: the two's
// complement of the low 7 bits of the byte sum, with the high bit forced on.
func checksum(cmd []byte) byte {
	sum := 0
	for _, b := range cmd {
		sum += int(b)
	}
	return byte(-(sum & 0x7F)) | 0x80
}

// command sends one framed command. When wantValue is set the controller's
// value line is read, verified, and returned with its checksum and
// terminator stripped.
func (c *Controller) command(cmd string, wantValue bool) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.log.Warnf("retrying %q: %v", cmd, lastErr)
			time.Sleep(retryDelay)
		}
		value, err := c.attempt(cmd, wantValue)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("command %q: %w", cmd, lastErr)
}

func (c *Controller) attempt(cmd string, wantValue bool) (string, error) {
	if err := c.p.Flush(); err != nil {
		return "", err
	}
	time.Sleep(settleDelay)

	frame := make([]byte, 0, len(cmd)+3)
	frame = append(frame, frameByte)
	frame = append(frame, cmd...)
	frame = append(frame, checksum([]byte(cmd)), frameByte)
	if _, err := c.p.Write(frame); err != nil {
		return "", err
	}

	b, err := c.readByte()
	if err != nil {
		return "", err
	}
	if b != ack {
		return "", errNAK
	}
	if !wantValue {
		return "", nil
	}
	return c.readValue()
}

func (c *Controller) readByte() (byte, error) {
	var buf [1]byte
	n, err := c.p.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errTimeout
	}
	return buf[0], nil
}

// readValue reads a \r\n-terminated line whose final payload byte is the
// checksum over the preceding bytes.
func (c *Controller) readValue() (string, error) {
	var line []byte
	for {
		b, err := c.readByte()
		if err != nil {
			return "", err
		}
		line = append(line, b)
		if len(line) >= 2 && line[len(line)-2] == '\r' && line[len(line)-1] == '\n' {
			break
		}
	}
	line = line[:len(line)-2]
	if len(line) < 1 {
		return "", errShortReply
	}
	payload, sum := line[:len(line)-1], line[len(line)-1]
	if checksum(payload) != sum {
		return "", errChecksum
	}
	return string(payload), nil
}
