package dome

// Controller is the subset of the motor controller the arbiter drives.
// *ashdome.Controller implements it; tests substitute a fake.
type Controller interface {
	ShutterMoving() (bool, error)
	ShutterVelocity() (int, error)
	ShutterLimits() (closed, open bool, err error)
	AzimuthMoving() (bool, error)
	AzimuthSteps() (int, error)
	ZeroAzimuth() error
	MoveShutter(steps int) error
	SlewToStep(step int) error
	StopShutter() error
	StopAzimuth() error
	Home() error
	Close() error
}

// DialFunc opens a connection to the motor controller.
type DialFunc func() (Controller, error)
