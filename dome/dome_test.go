package dome_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ashdome-obs/domed/dome"
	"github.com/ashdome-obs/domed/internal/config"
)

// fakeController scripts the motor controller. Moves run for moveReads
// status polls before the motor reports stopped, mimicking the real
// controller's MV flag. Only mutating commands are recorded; status reads
// are not.
type fakeController struct {
	mu       sync.Mutex
	commands []string

	moveReads int

	azReads int
	steps   int

	shReads     int
	shVelocity  int
	closedLimit bool
	openLimit   bool
	targetOpen  bool

	fail bool
}

func newFakeController() *fakeController {
	return &fakeController{moveReads: 3, closedLimit: true}
}

var errFakeSerial = errors.New("serial fault")

func (f *fakeController) record(cmd string) {
	f.commands = append(f.commands, cmd)
}

func (f *fakeController) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeController) setMoveReads(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveReads = n
}

func (f *fakeController) commandLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeController) countCommands(prefix string) int {
	count := 0
	for _, cmd := range f.commandLog() {
		if strings.HasPrefix(cmd, prefix) {
			count++
		}
	}
	return count
}

func (f *fakeController) lastCommand(prefix string) string {
	last := ""
	for _, cmd := range f.commandLog() {
		if strings.HasPrefix(cmd, prefix) {
			last = cmd
		}
	}
	return last
}

func (f *fakeController) ShutterMoving() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errFakeSerial
	}
	if f.shReads > 0 {
		f.shReads--
		if f.shReads == 0 {
			f.closedLimit = !f.targetOpen
			f.openLimit = f.targetOpen
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeController) ShutterVelocity() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errFakeSerial
	}
	return f.shVelocity, nil
}

func (f *fakeController) ShutterLimits() (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, false, errFakeSerial
	}
	return f.closedLimit, f.openLimit, nil
}

func (f *fakeController) AzimuthMoving() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errFakeSerial
	}
	if f.azReads > 0 {
		f.azReads--
		return true, nil
	}
	return false, nil
}

func (f *fakeController) AzimuthSteps() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errFakeSerial
	}
	return f.steps, nil
}

func (f *fakeController) ZeroAzimuth() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = 0
	f.record("AP=0")
	return nil
}

func (f *fakeController) MoveShutter(steps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("OMR %d", steps))
	f.shReads = f.moveReads
	f.targetOpen = steps > 0
	f.closedLimit = false
	f.openLimit = false
	if f.targetOpen {
		f.shVelocity = 1200
	} else {
		f.shVelocity = -1200
	}
	return nil
}

func (f *fakeController) SlewToStep(step int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("AMA %d", step))
	f.steps = step
	f.azReads = f.moveReads
	return nil
}

func (f *fakeController) StopShutter() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("OSL 0")
	f.shReads = 0
	f.shVelocity = 0
	return nil
}

func (f *fakeController) StopAzimuth() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ASL 0")
	f.azReads = 0
	return nil
}

func (f *fakeController) Home() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AHM 1")
	f.azReads = f.moveReads
	return nil
}

func (f *fakeController) Close() error {
	return nil
}

// fakeSky returns a scripted horizontal position.
type fakeSky struct {
	mu  sync.Mutex
	alt float64
	az  func(t time.Time) float64
}

func (f *fakeSky) set(alt float64, az func(t time.Time) float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alt = alt
	f.az = az
}

func (f *fakeSky) Horizontal(ra, dec float64, t time.Time) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alt, f.az(t), nil
}

func constAz(az float64) func(time.Time) float64 {
	return func(time.Time) float64 { return az }
}

func testConfig() *config.Config {
	return &config.Config{
		Latitude:              28.76,
		Longitude:             -17.88,
		Altitude:              2387,
		SerialPort:            "/dev/dome",
		SerialBaud:            9600,
		SerialTimeout:         1,
		SerialRetries:         1,
		StepsPerRotation:      3600,
		HomeAzimuth:           110,
		ParkAzimuth:           200,
		TrackingMaxSeparation: 5,
		IdleLoopDelay:         0.02,
		MovingLoopDelay:       0.01,
		AzimuthMoveTimeout:    2,
		ShutterMoveTimeout:    2,
		DomeRadiusCM:          300,
		TelescopeOffsetXCM:    0,
	}
}

func newTestDome(t *testing.T, cfg *config.Config) (*dome.Dome, *fakeController, *fakeSky) {
	t.Helper()
	fc := newFakeController()
	fs := &fakeSky{alt: 45, az: constAz(90)}
	d := dome.New(cfg, fs, func() (dome.Controller, error) { return fc, nil }, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d, fc, fs
}

func waitStatus(t *testing.T, d *dome.Dome, pred func(dome.Snapshot) bool) dome.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap := d.Status()
		if pred(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("status condition not reached; last status %+v", snap)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func azimuthIs(want float64) func(dome.Snapshot) bool {
	return func(s dome.Snapshot) bool {
		return s.AzimuthStatus == dome.AzimuthIdle && s.Azimuth != nil && *s.Azimuth == want
	}
}

func TestConnectLifecycle(t *testing.T) {
	d, _, _ := newTestDome(t, testConfig())

	assert.Equal(t, dome.Succeeded, d.Ping())
	assert.Equal(t, dome.NotConnected, d.OpenShutter(false, false))
	assert.Equal(t, dome.NotConnected, d.SetHeartbeatTimer(10))
	assert.Equal(t, dome.NotConnected, d.Shutdown())

	require.Equal(t, dome.Succeeded, d.Initialize())
	snap := d.Status()
	assert.Equal(t, dome.AzimuthNotHomed, snap.AzimuthStatus)
	assert.Equal(t, "NOT HOMED", snap.AzimuthStatusLabel)
	assert.Equal(t, dome.ShutterClosed, snap.ShutterStatus)
	require.NotNil(t, snap.FollowTelescope)
	assert.True(t, *snap.FollowTelescope)
	require.NotNil(t, snap.Closed)
	assert.True(t, *snap.Closed)
	require.NotNil(t, snap.HeartbeatStatus)
	assert.Equal(t, dome.HeartbeatDisabled, *snap.HeartbeatStatus)

	assert.Equal(t, dome.NotDisconnected, d.Initialize())

	require.Equal(t, dome.Succeeded, d.Shutdown())
	snap = d.Status()
	assert.Equal(t, dome.AzimuthDisconnected, snap.AzimuthStatus)
	assert.Equal(t, dome.ShutterDisconnected, snap.ShutterStatus)
	assert.Nil(t, snap.Azimuth)
	assert.Nil(t, snap.HeartbeatStatus)
}

func TestConnectFailure(t *testing.T) {
	cfg := testConfig()
	d := dome.New(cfg, &fakeSky{az: constAz(0)}, func() (dome.Controller, error) {
		return nil, errors.New("no such port")
	}, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	assert.Equal(t, dome.Failed, d.Initialize())
	assert.Equal(t, dome.AzimuthDisconnected, d.Status().AzimuthStatus)
}

func TestOpenAndCloseShutterBlocking(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())

	require.Equal(t, dome.Succeeded, d.OpenShutter(true, false))
	snap := d.Status()
	assert.Equal(t, dome.ShutterOpen, snap.ShutterStatus)
	require.NotNil(t, snap.Closed)
	assert.False(t, *snap.Closed)
	assert.Equal(t, "OMR 100000000", fc.lastCommand("OMR"))

	require.Equal(t, dome.Succeeded, d.CloseShutter(true, false))
	snap = d.Status()
	assert.Equal(t, dome.ShutterClosed, snap.ShutterStatus)
	assert.Equal(t, "OMR -100000000", fc.lastCommand("OMR"))
}

func TestShutterBlockedWhileMoving(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	fc.setMoveReads(10000)

	require.Equal(t, dome.Succeeded, d.OpenShutter(false, false))
	assert.Equal(t, dome.Blocked, d.OpenShutter(false, false))
	assert.Equal(t, dome.Blocked, d.CloseShutter(false, false))

	// Override starts the close without waiting for the open to finish.
	assert.Equal(t, dome.Succeeded, d.CloseShutter(false, true))

	require.Equal(t, dome.Succeeded, d.StopShutter())
	snap := waitStatus(t, d, func(s dome.Snapshot) bool {
		return s.ShutterStatus == dome.ShutterPartiallyOpen
	})
	assert.Equal(t, "PARTIALLY OPEN", snap.ShutterStatusLabel)
}

func TestShutterBlockingTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ShutterMoveTimeout = 0.2
	d, fc, _ := newTestDome(t, cfg)
	require.Equal(t, dome.Succeeded, d.Initialize())
	fc.setMoveReads(10000)

	start := time.Now()
	assert.Equal(t, dome.Failed, d.OpenShutter(true, false))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFollowModeInterlocks(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())

	assert.Equal(t, dome.FollowModeActive, d.SlewAzimuth(90, false))
	assert.Equal(t, dome.FollowModeActive, d.Park(false))
	assert.Equal(t, dome.FollowModeActive, d.StopAzimuth())
	assert.Equal(t, dome.FollowModeActive, d.TrackRADec(10, 20, false))

	require.Equal(t, dome.Succeeded, d.SetFollowMode(false))
	assert.Equal(t, dome.NotHomed, d.SlewAzimuth(90, false))
	assert.Equal(t, dome.Succeeded, d.StopAzimuth())
	assert.Equal(t, 1, fc.countCommands("ASL"))
}

func TestHomeThenPark(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())

	require.Equal(t, dome.Succeeded, d.HomeAzimuth(true))
	snap := waitStatus(t, d, azimuthIs(200))
	assert.Equal(t, "IDLE", snap.AzimuthStatusLabel)

	log := fc.commandLog()
	require.Equal(t, []string{"AHM 1", "AP=0", "AMA 900"}, log)
}

func TestShortestPathSlew(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	require.Equal(t, dome.Succeeded, d.SetFollowMode(false))
	require.Equal(t, dome.Succeeded, d.HomeAzimuth(true))
	waitStatus(t, d, azimuthIs(200))

	require.Equal(t, dome.Succeeded, d.SlewAzimuth(359, true))
	waitStatus(t, d, azimuthIs(359))

	// Two degrees clockwise through north, not a 358 degree retreat.
	require.Equal(t, dome.Succeeded, d.SlewAzimuth(1, true))
	assert.Equal(t, "AMA 2510", fc.lastCommand("AMA"))
	waitStatus(t, d, azimuthIs(1))
}

func TestHeartbeatTimerValidation(t *testing.T) {
	d, _, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())

	assert.Equal(t, dome.HeartbeatInvalidTimeout, d.SetHeartbeatTimer(-1))
	assert.Equal(t, dome.HeartbeatInvalidTimeout, d.SetHeartbeatTimer(180))
	assert.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(179))

	snap := d.Status()
	require.NotNil(t, snap.HeartbeatStatus)
	assert.Equal(t, dome.HeartbeatActive, *snap.HeartbeatStatus)
	assert.Equal(t, "ACTIVE", snap.HeartbeatLabel)
	require.NotNil(t, snap.HeartbeatRemaining)
	assert.Greater(t, *snap.HeartbeatRemaining, 170.0)

	assert.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(0))
	snap = d.Status()
	assert.Equal(t, dome.HeartbeatDisabled, *snap.HeartbeatStatus)
	assert.Nil(t, snap.HeartbeatRemaining)

	// Disabling again stays disabled.
	assert.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(0))
	assert.Equal(t, dome.HeartbeatDisabled, *d.Status().HeartbeatStatus)
}

func TestHeartbeatTripsDuringOpen(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	fc.setMoveReads(100)

	require.Equal(t, dome.Succeeded, d.OpenShutter(false, false))
	require.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(0.1))

	waitStatus(t, d, func(s dome.Snapshot) bool {
		return s.HeartbeatStatus != nil && *s.HeartbeatStatus == dome.HeartbeatTrippedClosing
	})
	assert.Equal(t, "OMR -100000000", fc.lastCommand("OMR"))
	assert.Equal(t, dome.HeartbeatCloseInProgress, d.CloseShutter(false, false))

	snap := waitStatus(t, d, func(s dome.Snapshot) bool {
		return s.HeartbeatStatus != nil && *s.HeartbeatStatus == dome.HeartbeatTrippedIdle
	})
	assert.Equal(t, dome.ShutterClosed, snap.ShutterStatus)
	assert.Equal(t, "TRIPPED", snap.HeartbeatLabel)

	assert.Equal(t, dome.HeartbeatTimedOut, d.CloseShutter(false, false))
	assert.Equal(t, dome.HeartbeatTimedOut, d.OpenShutter(false, false))
	assert.Equal(t, dome.HeartbeatTimedOut, d.SetHeartbeatTimer(30))
	assert.Equal(t, dome.Succeeded, d.StopShutter())

	assert.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(0))
	assert.Equal(t, dome.HeartbeatDisabled, *d.Status().HeartbeatStatus)
	assert.Equal(t, dome.Succeeded, d.OpenShutter(false, false))
}

func TestEngineeringInterlock(t *testing.T) {
	d, _, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	require.Equal(t, dome.Succeeded, d.SetFollowMode(false))

	require.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(30))
	assert.Equal(t, dome.EngineeringModeRequiresHeartbeatDisabled, d.SetEngineeringMode(true))

	require.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(0))
	require.Equal(t, dome.Succeeded, d.SetEngineeringMode(true))
	assert.True(t, d.Status().EngineeringMode)

	assert.Equal(t, dome.EngineeringModeActive, d.OpenShutter(false, false))
	assert.Equal(t, dome.EngineeringModeActive, d.SlewAzimuth(90, false))
	assert.Equal(t, dome.EngineeringModeActive, d.SetFollowMode(true))
	assert.Equal(t, dome.EngineeringModeActive, d.SetHeartbeatTimer(30))

	require.Equal(t, dome.Succeeded, d.SetEngineeringMode(false))
	assert.False(t, d.Status().EngineeringMode)
	assert.Equal(t, dome.Succeeded, d.OpenShutter(false, false))
}

func TestStopShutterDuringHeartbeatClose(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	fc.setMoveReads(10000)

	require.Equal(t, dome.Succeeded, d.OpenShutter(false, false))
	require.Equal(t, dome.Succeeded, d.SetHeartbeatTimer(0.1))
	waitStatus(t, d, func(s dome.Snapshot) bool {
		return s.HeartbeatStatus != nil && *s.HeartbeatStatus == dome.HeartbeatTrippedClosing
	})

	// Stop stays available while the safety close runs; everything else is
	// still refused.
	assert.Equal(t, dome.HeartbeatCloseInProgress, d.CloseShutter(false, false))
	assert.Equal(t, dome.Succeeded, d.StopShutter())
	assert.Equal(t, 1, fc.countCommands("OSL"))

	snap := waitStatus(t, d, func(s dome.Snapshot) bool {
		return s.ShutterStatus == dome.ShutterPartiallyOpen
	})
	assert.Equal(t, dome.HeartbeatTrippedClosing, *snap.HeartbeatStatus)
}

func TestEngineeringModeClearsTracking(t *testing.T) {
	d, fc, fs := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	require.Equal(t, dome.Succeeded, d.SetFollowMode(false))
	require.Equal(t, dome.Succeeded, d.HomeAzimuth(true))
	waitStatus(t, d, azimuthIs(200))

	fs.set(45, constAz(90))
	require.Equal(t, dome.Succeeded, d.TrackRADec(10, 20, true))
	waitStatus(t, d, func(s dome.Snapshot) bool { return s.TrackingRA != nil })

	require.Equal(t, dome.Succeeded, d.SetEngineeringMode(true))
	snap := d.Status()
	assert.True(t, snap.EngineeringMode)
	assert.Nil(t, snap.TrackingRA)
	assert.Nil(t, snap.TrackingAzimuth)

	// With the target dropped no correction fires while the interlock is up.
	fs.set(45, constAz(150))
	slews := fc.countCommands("AMA")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, slews, fc.countCommands("AMA"))

	require.Equal(t, dome.Succeeded, d.SetEngineeringMode(false))
	assert.Nil(t, d.Status().TrackingRA)
}

func TestTelescopeNotifications(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	require.Equal(t, dome.Succeeded, d.HomeAzimuth(true))
	waitStatus(t, d, azimuthIs(200))

	// Direct slews are refused while following, notifications drive motion.
	assert.Equal(t, dome.FollowModeActive, d.SlewAzimuth(90, false))
	require.Equal(t, dome.Succeeded, d.NotifyTelescopeAltAz(30, 90))
	waitStatus(t, d, azimuthIs(90))

	require.Equal(t, dome.Succeeded, d.NotifyTelescopeStopped())
	assert.Equal(t, 1, fc.countCommands("ASL"))

	require.Equal(t, dome.Succeeded, d.NotifyTelescopeParked())
	waitStatus(t, d, azimuthIs(200))

	// With follow mode off every notification is an accepted no-op.
	require.Equal(t, dome.Succeeded, d.SetFollowMode(false))
	before := len(fc.commandLog())
	assert.Equal(t, dome.Succeeded, d.NotifyTelescopeAltAz(30, 150))
	assert.Equal(t, dome.Succeeded, d.NotifyTelescopeStopped())
	assert.Equal(t, dome.Succeeded, d.NotifyTelescopeParked())
	assert.Equal(t, dome.Succeeded, d.NotifyTelescopeRADec(10, 20, true))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, len(fc.commandLog()))
}

func TestTrackingLeadsTheSky(t *testing.T) {
	d, fc, fs := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	require.Equal(t, dome.Succeeded, d.SetFollowMode(false))
	require.Equal(t, dome.Succeeded, d.HomeAzimuth(true))
	waitStatus(t, d, azimuthIs(200))

	fs.set(45, constAz(90))
	require.Equal(t, dome.Succeeded, d.TrackRADec(10.5, 20.25, true))
	snap := waitStatus(t, d, azimuthIs(90))
	require.NotNil(t, snap.TrackingRA)
	assert.Equal(t, 10.5, *snap.TrackingRA)
	assert.Equal(t, 20.25, *snap.TrackingDec)

	// The target drifts 10 degrees ahead, beyond the 5 degree threshold:
	// the correction slews past the target by the threshold so the dome
	// leads the sky.
	ref := time.Now()
	fs.set(45, func(t time.Time) float64 {
		return 100 + t.Sub(ref).Seconds()*0.001
	})
	snap = waitStatus(t, d, azimuthIs(105))
	assert.Equal(t, "AMA -50", fc.lastCommand("AMA"))
	require.NotNil(t, snap.TrackingAzimuth)
	assert.InDelta(t, 100, *snap.TrackingAzimuth, 0.1)

	// Inside the threshold no correction is issued, but the target azimuth
	// keeps updating.
	fs.set(45, constAz(109.9))
	waitStatus(t, d, func(s dome.Snapshot) bool {
		return s.TrackingAzimuth != nil && math.Abs(*s.TrackingAzimuth-109.9) < 1e-6
	})
	slews := fc.countCommands("AMA")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, slews, fc.countCommands("AMA"))

	// A direct slew clears the tracking target.
	require.Equal(t, dome.Succeeded, d.SlewAzimuth(30, true))
	snap = waitStatus(t, d, azimuthIs(30))
	assert.Nil(t, snap.TrackingRA)
	assert.Nil(t, snap.TrackingAzimuth)
}

func TestStopAzimuthClearsTracking(t *testing.T) {
	d, fc, fs := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	require.Equal(t, dome.Succeeded, d.SetFollowMode(false))
	require.Equal(t, dome.Succeeded, d.HomeAzimuth(true))
	waitStatus(t, d, azimuthIs(200))

	fs.set(45, constAz(90))
	require.Equal(t, dome.Succeeded, d.TrackRADec(10, 20, true))
	waitStatus(t, d, func(s dome.Snapshot) bool { return s.TrackingRA != nil })

	require.Equal(t, dome.Succeeded, d.StopAzimuth())
	assert.Equal(t, 1, fc.countCommands("ASL"))
	waitStatus(t, d, func(s dome.Snapshot) bool { return s.TrackingRA == nil })
}

func TestSerialFaultDisconnects(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())

	fc.setFail(true)
	waitStatus(t, d, func(s dome.Snapshot) bool {
		return s.AzimuthStatus == dome.AzimuthDisconnected
	})
	assert.Equal(t, dome.ShutterDisconnected, d.Status().ShutterStatus)
	assert.Equal(t, dome.NotConnected, d.OpenShutter(false, false))
	assert.Equal(t, dome.NotConnected, d.HomeAzimuth(false))

	// Reconnecting recovers.
	fc.setFail(false)
	assert.Equal(t, dome.Succeeded, d.Initialize())
	assert.Equal(t, dome.AzimuthNotHomed, d.Status().AzimuthStatus)
}

func TestHomeBlockedWhileMoving(t *testing.T) {
	d, fc, _ := newTestDome(t, testConfig())
	require.Equal(t, dome.Succeeded, d.Initialize())
	fc.setMoveReads(10000)

	require.Equal(t, dome.Succeeded, d.HomeAzimuth(false))
	assert.Equal(t, dome.Blocked, d.HomeAzimuth(false))
	assert.Equal(t, dome.Blocked, d.SetEngineeringMode(true))
}
