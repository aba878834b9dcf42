// Package dome holds the authoritative dome state and the arbiter worker
// that owns the motor controller. All motor I/O and every state mutation
// happen on the arbiter goroutine; remote calls communicate with it through
// a request queue and read state from published snapshots.
package dome

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ashdome-obs/domed/ashdome"
	"github.com/ashdome-obs/domed/geometry"
	"github.com/ashdome-obs/domed/internal/config"
	"github.com/ashdome-obs/domed/sky"
)

// state is the authoritative dome record. The arbiter owns the working copy
// and publishes a snapshot under stateMu after each iteration.
type state struct {
	connected   bool
	timestamp   time.Time
	azStatus    AzimuthStatus
	shStatus    ShutterStatus
	hbStatus    HeartbeatStatus
	hbExpires   time.Time
	azimuth     float64 // unwrapped slit azimuth in degrees
	engineering bool
	follow      bool
	tracking    *Target
	trackingAz  float64
}

type Dome struct {
	cfg  *config.Config
	sky  sky.Transform
	dial DialFunc
	log  *zap.SugaredLogger

	requests chan request
	results  chan CommandStatus
	// commandMu serialises remote calls so each caller observes its own
	// reply on the result channel.
	commandMu sync.Mutex

	stateMu   sync.Mutex
	moveDone  *sync.Cond
	published state
	onStatus  func(Snapshot)

	// Touched only by the arbiter goroutine.
	controller Controller
	st         state
}

func New(cfg *config.Config, transform sky.Transform, dial DialFunc, log *zap.SugaredLogger) *Dome {
	d := &Dome{
		cfg:      cfg,
		sky:      transform,
		dial:     dial,
		log:      log,
		requests: make(chan request),
		results:  make(chan CommandStatus),
	}
	d.moveDone = sync.NewCond(&d.stateMu)
	return d
}

// OnStatus registers a callback invoked with a fresh snapshot after every
// state publish. It must be set before Run.
func (d *Dome) OnStatus(cb func(Snapshot)) {
	d.onStatus = cb
}

// Run executes the arbiter loop until the context is cancelled. It polls
// status at the adaptive rate and consumes at most one queued request per
// iteration.
func (d *Dome) Run(ctx context.Context) error {
	for {
		var req *request
		timer := time.NewTimer(d.pollDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			if d.controller != nil {
				d.controller.Close()
				d.controller = nil
			}
			return ctx.Err()
		case r := <-d.requests:
			timer.Stop()
			req = &r
		case <-timer.C:
		}
		d.iterate(req)
	}
}

func (d *Dome) iterate(req *request) {
	if req != nil && (req.kind == reqConnect || req.kind == reqDisconnect) {
		var res CommandStatus
		if req.kind == reqConnect {
			res = d.connect()
		} else {
			res = d.disconnect()
		}
		d.publish()
		d.results <- res
		return
	}

	d.refresh()

	if d.controller != nil && d.st.hbStatus == HeartbeatActive && !time.Now().Before(d.st.hbExpires) {
		d.log.Warn("heartbeat expired; closing shutter")
		d.dispatch(request{kind: reqHeartbeatExpired})
	} else if req == nil && d.controller != nil && d.st.tracking != nil && d.st.azStatus == AzimuthIdle {
		d.trackingCorrection()
	}

	if req != nil {
		res := d.dispatch(*req)
		d.refresh()
		d.publish()
		d.results <- res
		return
	}
	d.publish()
}

func (d *Dome) pollDelay() time.Duration {
	delay := config.Seconds(d.cfg.IdleLoopDelay)
	if d.movement() {
		delay = config.Seconds(d.cfg.MovingLoopDelay)
	}
	if d.st.hbStatus == HeartbeatActive && time.Until(d.st.hbExpires) < delay && delay > time.Second {
		delay = time.Second
	}
	return delay
}

func (d *Dome) movement() bool {
	switch d.st.azStatus {
	case AzimuthMoving, AzimuthHoming:
		return true
	}
	switch d.st.shStatus {
	case ShutterOpening, ShutterClosing:
		return true
	}
	return false
}

func (d *Dome) connect() CommandStatus {
	if d.controller != nil {
		return NotDisconnected
	}
	c, err := d.dial()
	if err != nil {
		d.log.Errorf("connecting: %v", err)
		return Failed
	}
	d.controller = c
	d.st = state{
		connected: true,
		azStatus:  AzimuthNotHomed,
		follow:    true,
	}
	if err := d.refreshStatus(); err != nil {
		d.fault(err)
		return Failed
	}
	d.log.Info("dome connected")
	return Succeeded
}

func (d *Dome) disconnect() CommandStatus {
	if d.controller == nil {
		return NotConnected
	}
	d.controller.Close()
	d.controller = nil
	d.st = state{}
	d.log.Info("dome disconnected")
	return Succeeded
}

// fault tears down the serial connection after an unrecoverable motor I/O
// error. The operator must re-initialise; there is no automatic reconnect.
func (d *Dome) fault(err error) CommandStatus {
	d.log.Errorf("serial fault: %v", err)
	if d.controller != nil {
		d.controller.Close()
		d.controller = nil
	}
	d.st = state{}
	return Failed
}

func (d *Dome) refresh() {
	if d.controller == nil {
		return
	}
	if err := d.refreshStatus(); err != nil {
		d.fault(err)
	}
}

func (d *Dome) refreshStatus() error {
	c := d.controller
	shMoving, err := c.ShutterMoving()
	if err != nil {
		return err
	}
	shVelocity, err := c.ShutterVelocity()
	if err != nil {
		return err
	}
	closed, open, err := c.ShutterLimits()
	if err != nil {
		return err
	}
	azMoving, err := c.AzimuthMoving()
	if err != nil {
		return err
	}
	steps, err := c.AzimuthSteps()
	if err != nil {
		return err
	}

	switch {
	case shMoving && shVelocity >= 0:
		d.st.shStatus = ShutterOpening
	case shMoving:
		d.st.shStatus = ShutterClosing
	case closed:
		d.st.shStatus = ShutterClosed
	case open:
		d.st.shStatus = ShutterOpen
	default:
		d.st.shStatus = ShutterPartiallyOpen
	}
	if d.st.shStatus == ShutterClosed && d.st.hbStatus == HeartbeatTrippedClosing {
		d.st.hbStatus = HeartbeatTrippedIdle
	}

	switch d.st.azStatus {
	case AzimuthHoming:
		if !azMoving {
			// The home switch stopped the motor; its position defines the
			// origin of the step register.
			if err := c.ZeroAzimuth(); err != nil {
				return err
			}
			d.st.azimuth = d.cfg.HomeAzimuth
			d.st.azStatus = AzimuthIdle
			d.st.tracking = nil
			// Chain the park slew in the same tick so waiters never
			// observe the intermediate idle state.
			d.log.Infof("homed; slewing to park azimuth %.1f", d.cfg.ParkAzimuth)
			if d.slew(d.cfg.ParkAzimuth) != Succeeded {
				// The fault path has already torn the connection down.
				return nil
			}
		}
	case AzimuthNotHomed:
		// Step counts are meaningless until the axis has been homed.
	default:
		d.st.azimuth = geometry.StepsToAzimuth(steps, d.cfg.HomeAzimuth, d.cfg.StepsPerRotation)
		if azMoving {
			d.st.azStatus = AzimuthMoving
		} else {
			d.st.azStatus = AzimuthIdle
		}
	}
	d.st.timestamp = time.Now()
	return nil
}

func (d *Dome) dispatch(r request) CommandStatus {
	if r.kind == reqHeartbeatExpired {
		return d.execute(r)
	}
	if res := d.reject(r); res != Succeeded {
		return res
	}
	return d.execute(r)
}

// reject applies the interlock rules, in order, to a dequeued request.
func (d *Dome) reject(r request) CommandStatus {
	if d.controller == nil {
		return NotConnected
	}
	if d.st.engineering && r.kind != reqEngineering {
		return EngineeringModeActive
	}
	if r.kind.isShutterCommand() || r.kind == reqEngineering || r.kind == reqHeartbeat {
		switch d.st.hbStatus {
		case HeartbeatTrippedClosing:
			// Stop remains available while the safety close runs.
			if r.kind != reqStopShutter {
				return HeartbeatCloseInProgress
			}
		case HeartbeatTrippedIdle:
			// The shutter already sits on its closed limit; stopping it and
			// clearing the heartbeat are still allowed.
			allowed := r.kind == reqStopShutter || (r.kind == reqHeartbeat && r.timeout == 0)
			if !allowed {
				return HeartbeatTimedOut
			}
		}
	}
	if (r.kind == reqOpenShutter || r.kind == reqCloseShutter) && !r.override {
		if d.st.shStatus == ShutterOpening || d.st.shStatus == ShutterClosing {
			return Blocked
		}
	}
	if r.kind.isAzimuthMove() || r.kind == reqEngineering {
		if d.st.azStatus == AzimuthMoving || d.st.azStatus == AzimuthHoming {
			return Blocked
		}
	}
	if r.kind.isSlew() && d.st.azStatus == AzimuthNotHomed {
		return NotHomed
	}
	if r.kind == reqHeartbeat && (r.timeout < 0 || r.timeout >= 180) {
		return HeartbeatInvalidTimeout
	}
	if r.kind == reqEngineering && r.enable && d.st.hbStatus != HeartbeatDisabled {
		return EngineeringModeRequiresHeartbeatDisabled
	}
	return Succeeded
}

func (d *Dome) execute(r request) CommandStatus {
	c := d.controller
	switch r.kind {
	case reqOpenShutter:
		if err := c.MoveShutter(ashdome.ShutterTravelSteps); err != nil {
			return d.fault(err)
		}
		d.st.shStatus = ShutterOpening
	case reqCloseShutter:
		if err := c.MoveShutter(-ashdome.ShutterTravelSteps); err != nil {
			return d.fault(err)
		}
		d.st.shStatus = ShutterClosing
	case reqHeartbeatExpired:
		if err := c.MoveShutter(-ashdome.ShutterTravelSteps); err != nil {
			return d.fault(err)
		}
		d.st.shStatus = ShutterClosing
		d.st.hbStatus = HeartbeatTrippedClosing
	case reqStopShutter:
		if err := c.StopShutter(); err != nil {
			return d.fault(err)
		}
	case reqStopAzimuth:
		d.st.tracking = nil
		if err := c.StopAzimuth(); err != nil {
			return d.fault(err)
		}
	case reqHome:
		d.st.tracking = nil
		if err := c.Home(); err != nil {
			return d.fault(err)
		}
		d.st.azStatus = AzimuthHoming
	case reqSlewAzimuth:
		d.st.tracking = nil
		return d.slew(r.azimuth)
	case reqSlewAltAz:
		d.st.tracking = nil
		return d.slew(geometry.DomeAzimuth(r.altitude, r.azimuth, d.cfg.DomeRadiusCM, d.cfg.TelescopeOffsetXCM))
	case reqSlewRADec:
		d.st.tracking = nil
		target, err := d.domeAzimuthFor(r.ra, r.dec, time.Now())
		if err != nil {
			d.log.Errorf("computing dome azimuth: %v", err)
			return Failed
		}
		return d.slew(target)
	case reqTrackRADec:
		target, err := d.domeAzimuthFor(r.ra, r.dec, time.Now())
		if err != nil {
			d.log.Errorf("computing dome azimuth: %v", err)
			return Failed
		}
		if res := d.slew(target); res != Succeeded {
			return res
		}
		d.st.tracking = &Target{RA: r.ra, Dec: r.dec}
		d.st.trackingAz = target
	case reqHeartbeat:
		if r.timeout == 0 {
			d.st.hbStatus = HeartbeatDisabled
			d.st.hbExpires = time.Time{}
		} else {
			d.st.hbStatus = HeartbeatActive
			d.st.hbExpires = time.Now().Add(config.Seconds(r.timeout))
		}
	case reqEngineering:
		d.st.engineering = r.enable
		if r.enable {
			// A tracked target would otherwise keep issuing corrections
			// around the interlock.
			d.st.tracking = nil
		}
	case reqFollow:
		d.st.follow = r.enable
	}
	return Succeeded
}

// slew moves the azimuth axis to the requested angle, choosing the unwrapped
// target nearest the current position.
func (d *Dome) slew(target float64) CommandStatus {
	unwrapped := geometry.Unwrap(d.st.azimuth, geometry.Wrap(target))
	steps := geometry.TargetSteps(unwrapped, d.cfg.HomeAzimuth, d.cfg.StepsPerRotation)
	if err := d.controller.SlewToStep(steps); err != nil {
		return d.fault(err)
	}
	d.st.azStatus = AzimuthMoving
	return Succeeded
}

func (d *Dome) domeAzimuthFor(ra, dec float64, t time.Time) (float64, error) {
	alt, az, err := d.sky.Horizontal(ra, dec, t)
	if err != nil {
		return 0, err
	}
	return geometry.DomeAzimuth(alt, az, d.cfg.DomeRadiusCM, d.cfg.TelescopeOffsetXCM), nil
}

// trackingCorrection re-centres the slit on the tracked target when the
// separation exceeds the configured threshold. The slew leads the target in
// its direction of motion so the dome catches the sky rather than lags it.
func (d *Dome) trackingCorrection() {
	target := *d.st.tracking
	now := time.Now()
	current, err := d.domeAzimuthFor(target.RA, target.Dec, now)
	if err != nil {
		d.log.Errorf("tracking correction: %v", err)
		return
	}
	d.st.trackingAz = current
	delta := geometry.ShortestDelta(geometry.Wrap(d.st.azimuth), current)
	if math.Abs(delta) <= d.cfg.TrackingMaxSeparation {
		return
	}
	future, err := d.domeAzimuthFor(target.RA, target.Dec, now.Add(time.Minute))
	if err != nil {
		d.log.Errorf("tracking correction: %v", err)
		return
	}
	lead := d.cfg.TrackingMaxSeparation
	if geometry.ShortestDelta(current, future) < 0 {
		lead = -lead
	}
	d.log.Infof("tracking correction: slit at %.2f, target %.2f, slewing to %.2f",
		geometry.Wrap(d.st.azimuth), current, geometry.Wrap(current+lead))
	d.slew(current + lead)
}

func (d *Dome) publish() {
	d.stateMu.Lock()
	d.published = d.st
	d.moveDone.Broadcast()
	cb := d.onStatus
	d.stateMu.Unlock()
	if cb != nil {
		cb(d.st.snapshot())
	}
}

func (s state) snapshot() Snapshot {
	snap := Snapshot{
		Timestamp:          formatTimestamp(s.timestamp),
		AzimuthStatus:      s.azStatus,
		AzimuthStatusLabel: s.azStatus.String(),
		ShutterStatus:      s.shStatus,
		ShutterStatusLabel: s.shStatus.String(),
		EngineeringMode:    s.engineering,
	}
	if !s.connected {
		return snap
	}
	azimuth := geometry.Wrap(s.azimuth)
	closed := s.shStatus == ShutterClosed
	follow := s.follow
	heartbeat := s.hbStatus
	snap.Azimuth = &azimuth
	snap.FollowTelescope = &follow
	snap.Closed = &closed
	snap.HeartbeatStatus = &heartbeat
	snap.HeartbeatLabel = heartbeat.String()
	if heartbeat == HeartbeatActive {
		remaining := time.Until(s.hbExpires).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		snap.HeartbeatRemaining = &remaining
	}
	if s.tracking != nil {
		ra, dec, trackingAz := s.tracking.RA, s.tracking.Dec, s.trackingAz
		snap.TrackingRA = &ra
		snap.TrackingDec = &dec
		snap.TrackingAzimuth = &trackingAz
	}
	return snap
}
