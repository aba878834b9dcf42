package dome

import "time"

// AzimuthStatus describes the dome rotation axis.
type AzimuthStatus int

const (
	AzimuthDisconnected AzimuthStatus = iota
	AzimuthNotHomed
	AzimuthIdle
	AzimuthMoving
	AzimuthHoming
)

var azimuthLabels = map[AzimuthStatus]string{
	AzimuthDisconnected: "DISCONNECTED",
	AzimuthNotHomed:     "NOT HOMED",
	AzimuthIdle:         "IDLE",
	AzimuthMoving:       "MOVING",
	AzimuthHoming:       "HOMING",
}

func (s AzimuthStatus) String() string {
	if label, ok := azimuthLabels[s]; ok {
		return label
	}
	return "UNKNOWN"
}

// ShutterStatus describes the dome shutter.
type ShutterStatus int

const (
	ShutterDisconnected ShutterStatus = iota
	ShutterClosed
	ShutterOpen
	ShutterPartiallyOpen
	ShutterOpening
	ShutterClosing
)

var shutterLabels = map[ShutterStatus]string{
	ShutterDisconnected:  "DISCONNECTED",
	ShutterClosed:        "CLOSED",
	ShutterOpen:          "OPEN",
	ShutterPartiallyOpen: "PARTIALLY OPEN",
	ShutterOpening:       "OPENING",
	ShutterClosing:       "CLOSING",
}

func (s ShutterStatus) String() string {
	if label, ok := shutterLabels[s]; ok {
		return label
	}
	return "UNKNOWN"
}

// HeartbeatStatus describes the dead-man watchdog.
type HeartbeatStatus int

const (
	HeartbeatDisabled HeartbeatStatus = iota
	HeartbeatActive
	HeartbeatTrippedClosing
	HeartbeatTrippedIdle
)

var heartbeatLabels = map[HeartbeatStatus]string{
	HeartbeatDisabled:       "DISABLED",
	HeartbeatActive:         "ACTIVE",
	HeartbeatTrippedClosing: "CLOSING DOME",
	HeartbeatTrippedIdle:    "TRIPPED",
}

func (s HeartbeatStatus) String() string {
	if label, ok := heartbeatLabels[s]; ok {
		return label
	}
	return "UNKNOWN"
}

// CommandStatus is the result code returned to remote callers.
type CommandStatus int

const (
	Succeeded        CommandStatus = 0
	Failed           CommandStatus = 1
	Blocked          CommandStatus = 2
	InvalidControlIP CommandStatus = 3

	NotConnected    CommandStatus = 7
	NotDisconnected CommandStatus = 8
	NotHomed        CommandStatus = 9

	HeartbeatTimedOut                        CommandStatus = 13
	HeartbeatCloseInProgress                 CommandStatus = 14
	HeartbeatInvalidTimeout                  CommandStatus = 16
	EngineeringModeRequiresHeartbeatDisabled CommandStatus = 17
	EngineeringModeActive                    CommandStatus = 18
	FollowModeActive                         CommandStatus = 19
)

var commandMessages = map[CommandStatus]string{
	Succeeded:                "command succeeded",
	Failed:                   "error: command failed",
	Blocked:                  "error: another command is already running",
	InvalidControlIP:         "error: command not accepted from this IP",
	NotConnected:             "error: dome is not connected",
	NotDisconnected:          "error: dome is already connected",
	NotHomed:                 "error: dome has not been homed",
	HeartbeatTimedOut:        "error: heartbeat has tripped",
	HeartbeatCloseInProgress: "error: heartbeat is closing the dome",
	HeartbeatInvalidTimeout:  "error: heartbeat timeout must be less than 180s",
	EngineeringModeRequiresHeartbeatDisabled: "error: heartbeat must be disabled before enabling engineering mode",
	EngineeringModeActive:                    "error: dome is in engineering mode",
	FollowModeActive:                         "error: dome is following the telescope",
}

// Message returns a human readable string describing a result code.
func (s CommandStatus) Message() string {
	if msg, ok := commandMessages[s]; ok {
		return msg
	}
	return "error: unknown status"
}

// Target is an ICRS tracking coordinate in degrees.
type Target struct {
	RA  float64
	Dec float64
}

// Snapshot is the remote-visible dome state. Fields past EngineeringMode are
// only populated while the dome is connected.
type Snapshot struct {
	Timestamp          string        `json:"state_timestamp"`
	AzimuthStatus      AzimuthStatus `json:"azimuth_status"`
	AzimuthStatusLabel string        `json:"azimuth_status_label"`
	ShutterStatus      ShutterStatus `json:"shutter"`
	ShutterStatusLabel string        `json:"shutter_label"`
	EngineeringMode    bool          `json:"engineering_mode"`

	Azimuth            *float64         `json:"azimuth,omitempty"`
	FollowTelescope    *bool            `json:"follow_telescope,omitempty"`
	Closed             *bool            `json:"closed,omitempty"`
	HeartbeatStatus    *HeartbeatStatus `json:"heartbeat_status,omitempty"`
	HeartbeatLabel     string           `json:"heartbeat_status_label,omitempty"`
	HeartbeatRemaining *float64         `json:"heartbeat_remaining,omitempty"`
	TrackingRA         *float64         `json:"tracking_ra,omitempty"`
	TrackingDec        *float64         `json:"tracking_dec,omitempty"`
	TrackingAzimuth    *float64         `json:"tracking_azimuth,omitempty"`
}

const timestampFormat = "2006-01-02T15:04:05Z"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampFormat)
}
