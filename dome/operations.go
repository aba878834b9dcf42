package dome

import (
	"time"

	"github.com/ashdome-obs/domed/internal/config"
)

// submit queues one request and waits for the arbiter's reply.
func (d *Dome) submit(r request) CommandStatus {
	d.commandMu.Lock()
	defer d.commandMu.Unlock()
	d.requests <- r
	return <-d.results
}

func (d *Dome) snapshotState() state {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.published
}

func (d *Dome) followEnabled() bool {
	s := d.snapshotState()
	return s.connected && s.follow
}

// Status returns the remote-visible state snapshot. Allowed from any caller.
func (d *Dome) Status() Snapshot {
	return d.snapshotState().snapshot()
}

// Ping is an unconditional liveness check.
func (d *Dome) Ping() CommandStatus {
	return Succeeded
}

// Initialize connects to the motor controller.
func (d *Dome) Initialize() CommandStatus {
	return d.submit(request{kind: reqConnect})
}

// Shutdown disconnects from the motor controller.
func (d *Dome) Shutdown() CommandStatus {
	return d.submit(request{kind: reqDisconnect})
}

// OpenShutter opens the shutter. With blocking set it waits until the
// shutter leaves Opening and requires it to have reached Open.
func (d *Dome) OpenShutter(blocking, override bool) CommandStatus {
	res := d.submit(request{kind: reqOpenShutter, override: override})
	if res != Succeeded || !blocking {
		return res
	}
	return d.waitForShutter(ShutterOpening, ShutterOpen)
}

// CloseShutter closes the shutter; symmetric with OpenShutter.
func (d *Dome) CloseShutter(blocking, override bool) CommandStatus {
	res := d.submit(request{kind: reqCloseShutter, override: override})
	if res != Succeeded || !blocking {
		return res
	}
	return d.waitForShutter(ShutterClosing, ShutterClosed)
}

func (d *Dome) waitForShutter(transit, want ShutterStatus) CommandStatus {
	deadline := time.Now().Add(config.Seconds(d.cfg.ShutterMoveTimeout))
	final, ok := d.waitUntil(deadline, func(s state) bool { return s.shStatus != transit })
	if !ok || final.shStatus != want {
		return Failed
	}
	return Succeeded
}

// StopShutter halts the shutter motor.
func (d *Dome) StopShutter() CommandStatus {
	return d.submit(request{kind: reqStopShutter})
}

// StopAzimuth halts the azimuth motor and clears any tracking target.
func (d *Dome) StopAzimuth() CommandStatus {
	if d.followEnabled() {
		return FollowModeActive
	}
	return d.submit(request{kind: reqStopAzimuth})
}

// HomeAzimuth seeks the azimuth home switch. The arbiter chains a park slew
// once the home completes, so a blocking call waits for the dome to come to
// rest at the park azimuth.
func (d *Dome) HomeAzimuth(blocking bool) CommandStatus {
	res := d.submit(request{kind: reqHome})
	if res != Succeeded || !blocking {
		return res
	}
	return d.waitForAzimuthIdle()
}

// Park slews to the configured park azimuth.
func (d *Dome) Park(blocking bool) CommandStatus {
	if d.followEnabled() {
		return FollowModeActive
	}
	return d.slewAzimuth(d.cfg.ParkAzimuth, blocking)
}

// SlewAzimuth rotates the slit to the requested azimuth and clears any
// tracking target.
func (d *Dome) SlewAzimuth(azimuth float64, blocking bool) CommandStatus {
	if d.followEnabled() {
		return FollowModeActive
	}
	return d.slewAzimuth(azimuth, blocking)
}

func (d *Dome) slewAzimuth(azimuth float64, blocking bool) CommandStatus {
	res := d.submit(request{kind: reqSlewAzimuth, azimuth: azimuth})
	if res != Succeeded || !blocking {
		return res
	}
	return d.waitForAzimuthIdle()
}

// TrackRADec starts slit-tracking the given ICRS target.
func (d *Dome) TrackRADec(ra, dec float64, blocking bool) CommandStatus {
	if d.followEnabled() {
		return FollowModeActive
	}
	res := d.submit(request{kind: reqTrackRADec, ra: ra, dec: dec})
	if res != Succeeded || !blocking {
		return res
	}
	return d.waitForAzimuthIdle()
}

func (d *Dome) waitForAzimuthIdle() CommandStatus {
	deadline := time.Now().Add(config.Seconds(d.cfg.AzimuthMoveTimeout))
	final, ok := d.waitUntil(deadline, func(s state) bool {
		return s.azStatus != AzimuthMoving && s.azStatus != AzimuthHoming
	})
	if !ok || final.azStatus != AzimuthIdle {
		return Failed
	}
	return Succeeded
}

// SetFollowMode enables or disables slit-following of telescope
// notifications.
func (d *Dome) SetFollowMode(enabled bool) CommandStatus {
	return d.submit(request{kind: reqFollow, enable: enabled})
}

// SetEngineeringMode enables or disables the engineering interlock.
func (d *Dome) SetEngineeringMode(enabled bool) CommandStatus {
	return d.submit(request{kind: reqEngineering, enable: enabled})
}

// SetHeartbeatTimer arms the dead-man watchdog for the given number of
// seconds; zero disables it.
func (d *Dome) SetHeartbeatTimer(seconds float64) CommandStatus {
	return d.submit(request{kind: reqHeartbeat, timeout: seconds})
}

// NotifyTelescopeRADec handles a telescope pointing notification. With
// tracking set the dome follows the target; otherwise it slews once. All
// notifications are accepted no-ops while follow mode is off.
func (d *Dome) NotifyTelescopeRADec(ra, dec float64, tracking bool) CommandStatus {
	if !d.followEnabled() {
		return Succeeded
	}
	kind := reqSlewRADec
	if tracking {
		kind = reqTrackRADec
	}
	return d.submit(request{kind: kind, ra: ra, dec: dec})
}

// NotifyTelescopeAltAz slews the slit to the geometry-corrected azimuth for
// a telescope sight line.
func (d *Dome) NotifyTelescopeAltAz(alt, az float64) CommandStatus {
	if !d.followEnabled() {
		return Succeeded
	}
	return d.submit(request{kind: reqSlewAltAz, altitude: alt, azimuth: az})
}

// NotifyTelescopeStopped halts the azimuth axis.
func (d *Dome) NotifyTelescopeStopped() CommandStatus {
	if !d.followEnabled() {
		return Succeeded
	}
	return d.submit(request{kind: reqStopAzimuth})
}

// NotifyTelescopeParked slews to the park azimuth and clears tracking.
func (d *Dome) NotifyTelescopeParked() CommandStatus {
	if !d.followEnabled() {
		return Succeeded
	}
	return d.submit(request{kind: reqSlewAzimuth, azimuth: d.cfg.ParkAzimuth})
}

// waitUntil blocks until the predicate holds for a published state, the dome
// disconnects, or the deadline passes. The predicate is rechecked on every
// publish and at least once a second.
func (d *Dome) waitUntil(deadline time.Time, pred func(state) bool) (state, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				d.moveDone.Broadcast()
			}
		}
	}()

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	for {
		s := d.published
		if pred(s) {
			return s, true
		}
		if !s.connected {
			return s, false
		}
		if !time.Now().Before(deadline) {
			return s, false
		}
		d.moveDone.Wait()
	}
}
