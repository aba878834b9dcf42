package ashdome

import (
	"fmt"
	"strconv"
	"strings"
)

// ShutterTravelSteps is far longer than the shutter's actual travel, so a
// relative move of this size always runs the motor into a limit switch.
const ShutterTravelSteps = 100000000

// Input-limit bitfield positions reported by OPR IL.
const (
	limitClosed = 1 << 2
	limitOpen   = 1 << 3
)

func (c *Controller) flag(cmd string) (bool, error) {
	v, err := c.command(cmd, true)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(v) == "1", nil
}

func (c *Controller) number(cmd string) (int, error) {
	v, err := c.command(cmd, true)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parsing %q reply %q: %w", cmd, v, err)
	}
	return n, nil
}

// ShutterMoving reports whether the shutter motor is running.
func (c *Controller) ShutterMoving() (bool, error) {
	return c.flag("OPR MV")
}

// ShutterVelocity returns the signed shutter motor velocity. Positive is
// opening, negative closing.
func (c *Controller) ShutterVelocity() (int, error) {
	return c.number("OPR V")
}

// ShutterLimits reads the shutter limit switches.
func (c *Controller) ShutterLimits() (closed, open bool, err error) {
	bits, err := c.number("OPR IL")
	if err != nil {
		return false, false, err
	}
	return bits&limitClosed != 0, bits&limitOpen != 0, nil
}

// AzimuthMoving reports whether the azimuth motor is running.
func (c *Controller) AzimuthMoving() (bool, error) {
	return c.flag("APR MV")
}

// AzimuthSteps returns the azimuth motor's signed step register.
func (c *Controller) AzimuthSteps() (int, error) {
	return c.number("APR P")
}

// ZeroAzimuth sets the azimuth step register to zero. Issued at the home
// position so the register origin matches the home switch.
func (c *Controller) ZeroAzimuth() error {
	_, err := c.command("AP=0", false)
	return err
}

// MoveShutter moves the shutter by a relative step count.
func (c *Controller) MoveShutter(steps int) error {
	_, err := c.command(fmt.Sprintf("OMR %d", steps), false)
	return err
}

// SlewToStep moves the azimuth motor to an absolute step count.
func (c *Controller) SlewToStep(step int) error {
	_, err := c.command(fmt.Sprintf("AMA %d", step), false)
	return err
}

// StopShutter decelerates the shutter motor to zero velocity.
func (c *Controller) StopShutter() error {
	_, err := c.command("OSL 0", false)
	return err
}

// StopAzimuth decelerates the azimuth motor to zero velocity.
func (c *Controller) StopAzimuth() error {
	_, err := c.command("ASL 0", false)
	return err
}

// Home starts a home switch seek on the azimuth axis.
func (c *Controller) Home() error {
	_, err := c.command("AHM 1", false)
	return err
}
