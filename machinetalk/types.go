package machinetalk

// MessageType is the discriminant carried by every Container. The set is
// closed: unrecognized values are logged and dropped by every endpoint's
// dispatch loop rather than causing a decode failure.
type MessageType int

const (
	MTUnknown MessageType = iota

	// Shared keepalive codes.
	MTPing
	MTPingAcknowledge

	// Status replica codes.
	MTEmcstatFullUpdate
	MTEmcstatIncrementalUpdate

	// Error/notification codes (§4.3).
	MTNmlError
	MTNmlText
	MTNmlDisplay
	MTOperatorError
	MTOperatorText
	MTOperatorDisplay

	// Service-level error reported on the command channel (§4.4).
	MTError

	// Command codes (§6 command surface table).
	MTTaskAbort
	MTTaskPlanRun
	MTTaskPlanPause
	MTTaskPlanStep
	MTTaskResume
	MTTaskPlanInit
	MTTaskSetMode
	MTTaskSetState
	MTTaskPlanOpen
	MTTaskPlanExecute
	MTSpindleBrakeEngage
	MTSpindleBrakeRelease
	MTSpindleOn
	MTSpindleOff
	MTSpindleIncrease
	MTSpindleDecrease
	MTSpindleConstant
	MTTrajSetSpindleScale
	MTTrajSetScale
	MTSetFeedOverrideEnable
	MTSetSpindleOverrideEnable
	MTSetFeedHoldEnable
	MTSetAdaptiveFeedEnable
	MTSetBlockDeleteEnable
	MTSetOptionalStopEnable
	MTSetTeleopEnable
	MTCoolantFloodOn
	MTCoolantFloodOff
	MTCoolantMistOn
	MTCoolantMistOff
	MTAxisHome
	MTAxisUnhome
	MTAxisOverrideLimits
	MTAxisAbort
	MTAxisJog
	MTAxisIncrJog
	MTTrajSetMaxVelocity
	MTAxisSetMinPositionLimit
	MTAxisSetMaxPositionLimit
	MTToolLoadToolTable
	MTToolSetOffset
	MTMotionSetAout
	MTMotionSetDout
	MTTrajSetMode
	MTTrajSetTeleopVector
	MTSetDebug
	MTShutdown
)

var messageTypeNames = map[MessageType]string{
	MTUnknown:                 "UNKNOWN",
	MTPing:                    "PING",
	MTPingAcknowledge:         "PING_ACKNOWLEDGE",
	MTEmcstatFullUpdate:       "EMCSTAT_FULL_UPDATE",
	MTEmcstatIncrementalUpdate: "EMCSTAT_INCREMENTAL_UPDATE",
	MTNmlError:                "NML_ERROR",
	MTNmlText:                 "NML_TEXT",
	MTNmlDisplay:              "NML_DISPLAY",
	MTOperatorError:           "OPERATOR_ERROR",
	MTOperatorText:            "OPERATOR_TEXT",
	MTOperatorDisplay:         "OPERATOR_DISPLAY",
	MTError:                   "MT_ERROR",
	MTTaskAbort:               "TASK_ABORT",
	MTTaskPlanRun:             "TASK_PLAN_RUN",
	MTTaskPlanPause:           "TASK_PLAN_PAUSE",
	MTTaskPlanStep:            "TASK_PLAN_STEP",
	MTTaskResume:              "TASK_RESUME",
	MTTaskPlanInit:            "TASK_PLAN_INIT",
	MTTaskSetMode:             "TASK_SET_MODE",
	MTTaskSetState:            "TASK_SET_STATE",
	MTTaskPlanOpen:            "TASK_PLAN_OPEN",
	MTTaskPlanExecute:         "TASK_PLAN_EXECUTE",
	MTSpindleBrakeEngage:      "SPINDLE_BRAKE_ENGAGE",
	MTSpindleBrakeRelease:     "SPINDLE_BRAKE_RELEASE",
	MTSpindleOn:               "SPINDLE_ON",
	MTSpindleOff:              "SPINDLE_OFF",
	MTSpindleIncrease:         "SPINDLE_INCREASE",
	MTSpindleDecrease:         "SPINDLE_DECREASE",
	MTSpindleConstant:         "SPINDLE_CONSTANT",
	MTTrajSetSpindleScale:     "TRAJ_SET_SPINDLE_SCALE",
	MTTrajSetScale:            "TRAJ_SET_SCALE",
	MTSetFeedOverrideEnable:   "SET_FEED_OVERRIDE_ENABLE",
	MTSetSpindleOverrideEnable: "SET_SPINDLE_OVERRIDE_ENABLE",
	MTSetFeedHoldEnable:       "SET_FEED_HOLD_ENABLE",
	MTSetAdaptiveFeedEnable:   "MOTION_ADAPTIVE",
	MTSetBlockDeleteEnable:    "PLAN_SET_BLOCK_DELETE",
	MTSetOptionalStopEnable:   "PLAN_SET_OPTIONAL_STOP",
	MTSetTeleopEnable:         "TRAJ_SET_TELEOP_ENABLE",
	MTCoolantFloodOn:          "COOLANT_FLOOD_ON",
	MTCoolantFloodOff:         "COOLANT_FLOOD_OFF",
	MTCoolantMistOn:           "COOLANT_MIST_ON",
	MTCoolantMistOff:          "COOLANT_MIST_OFF",
	MTAxisHome:                "AXIS_HOME",
	MTAxisUnhome:              "AXIS_UNHOME",
	MTAxisOverrideLimits:      "AXIS_OVERRIDE_LIMITS",
	MTAxisAbort:               "AXIS_ABORT",
	MTAxisJog:                 "AXIS_JOG",
	MTAxisIncrJog:             "AXIS_INCR_JOG",
	MTTrajSetMaxVelocity:      "TRAJ_SET_MAX_VELOCITY",
	MTAxisSetMinPositionLimit: "AXIS_SET_MIN_POSITION_LIMIT",
	MTAxisSetMaxPositionLimit: "AXIS_SET_MAX_POSITION_LIMIT",
	MTToolLoadToolTable:       "TOOL_LOAD_TOOL_TABLE",
	MTToolSetOffset:           "TOOL_SET_OFFSET",
	MTMotionSetAout:           "MOTION_SET_AOUT",
	MTMotionSetDout:           "MOTION_SET_DOUT",
	MTTrajSetMode:             "TRAJ_SET_MODE",
	MTTrajSetTeleopVector:     "TRAJ_SET_TELEOP_VECTOR",
	MTSetDebug:                "SET_DEBUG",
	MTShutdown:                "SHUTDOWN",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// TaskMode mirrors the controller's task execution mode.
type TaskMode int32

const (
	TaskModeManual TaskMode = iota
	TaskModeAuto
	TaskModeMDI
)

// TaskState mirrors the controller's enable/estop state.
type TaskState int32

const (
	TaskStateEstop TaskState = iota
	TaskStateEstopReset
	TaskStateOff
	TaskStateOn
)

// InterpState mirrors the interpreter's run state.
type InterpState int32

const (
	InterpStateIdle InterpState = iota
	InterpStateReading
	InterpStatePaused
	InterpStateWaiting
)

// JogKind selects which jog command a jog() call issues.
type JogKind int

const (
	JogStop JogKind = iota
	JogContinuous
	JogIncrement
)

// SpindleMode selects which spindle command set_spindle issues.
type SpindleMode int

const (
	SpindleForward SpindleMode = iota
	SpindleReverse
	SpindleOffMode
	SpindleIncreaseMode
	SpindleDecreaseMode
	SpindleConstantMode
)

// SpindleBrake selects engage or release for set_spindle_brake.
type SpindleBrake int

const (
	SpindleBrakeEngage SpindleBrake = iota
	SpindleBrakeRelease
)

// Pose is a six-axis coordinate tuple used for teleop vectors.
type Pose struct {
	A, B, C, U, V, W float64
}

// ToolData is the tool-offset parameter block for set_tool_offset.
type ToolData struct {
	Index       int32
	ZOffset     float64
	XOffset     float64
	Diameter    float64
	FrontAngle  float64
	BackAngle   float64
	Orientation int32
}

// StatusMotion is the motion channel mirror. Optional fields are pointers
// so MergeFrom can distinguish "not present in this update" from a
// legitimate zero value, the way protobuf3 field presence works.
type StatusMotion struct {
	Enabled    *bool
	InPosition *bool
	Pose       *Pose
	CurrentVel *float64
}

func (m *StatusMotion) MergeFrom(src *StatusMotion) {
	if src == nil {
		return
	}
	if src.Enabled != nil {
		m.Enabled = src.Enabled
	}
	if src.InPosition != nil {
		m.InPosition = src.InPosition
	}
	if src.Pose != nil {
		m.Pose = src.Pose
	}
	if src.CurrentVel != nil {
		m.CurrentVel = src.CurrentVel
	}
}

func (m *StatusMotion) Clear() { *m = StatusMotion{} }

// StatusConfig is the config channel mirror.
type StatusConfig struct {
	AxisMask     *int32
	LinearUnits  *float64
	AngularUnits *float64
}

func (c *StatusConfig) MergeFrom(src *StatusConfig) {
	if src == nil {
		return
	}
	if src.AxisMask != nil {
		c.AxisMask = src.AxisMask
	}
	if src.LinearUnits != nil {
		c.LinearUnits = src.LinearUnits
	}
	if src.AngularUnits != nil {
		c.AngularUnits = src.AngularUnits
	}
}

func (c *StatusConfig) Clear() { *c = StatusConfig{} }

// StatusIo is the io channel mirror.
type StatusIo struct {
	EstopOk      *bool
	Lube         *bool
	FloodEnabled *bool
	MistEnabled  *bool
}

func (i *StatusIo) MergeFrom(src *StatusIo) {
	if src == nil {
		return
	}
	if src.EstopOk != nil {
		i.EstopOk = src.EstopOk
	}
	if src.Lube != nil {
		i.Lube = src.Lube
	}
	if src.FloodEnabled != nil {
		i.FloodEnabled = src.FloodEnabled
	}
	if src.MistEnabled != nil {
		i.MistEnabled = src.MistEnabled
	}
}

func (i *StatusIo) Clear() { *i = StatusIo{} }

// StatusTask is the task channel mirror.
type StatusTask struct {
	TaskMode  *TaskMode
	TaskState *TaskState
	File      *string
}

func (t *StatusTask) MergeFrom(src *StatusTask) {
	if src == nil {
		return
	}
	if src.TaskMode != nil {
		t.TaskMode = src.TaskMode
	}
	if src.TaskState != nil {
		t.TaskState = src.TaskState
	}
	if src.File != nil {
		t.File = src.File
	}
}

func (t *StatusTask) Clear() { *t = StatusTask{} }

// StatusInterp is the interp channel mirror.
type StatusInterp struct {
	InterpState *InterpState
	InterpName  *string
}

func (p *StatusInterp) MergeFrom(src *StatusInterp) {
	if src == nil {
		return
	}
	if src.InterpState != nil {
		p.InterpState = src.InterpState
	}
	if src.InterpName != nil {
		p.InterpName = src.InterpName
	}
}

func (p *StatusInterp) Clear() { *p = StatusInterp{} }

// CommandParams is the outbound parameter sub-block built by CommandClient
// operations before a send.
type CommandParams struct {
	LineNumber  int32
	TaskMode    TaskMode
	TaskState   TaskState
	Path        string
	Command     string
	Velocity    float64
	Distance    float64
	Index       int32
	Enable      bool
	Scale       float64
	Value       float64
	DebugLevel  int32
	TrajMode    int32
	Pose        Pose
	ToolData    ToolData
}

// PParams is the protocol-parameter block carried on status/error
// FULL_UPDATE and PING messages.
type PParams struct {
	KeepaliveTimer int64 // milliseconds
}

// Container is the reusable decode/encode target shared by every
// endpoint's I/O worker. Only the sub-payload relevant to the current
// Type is expected to be non-nil.
type Container struct {
	Type  MessageType
	Notes []string

	StatusMotion *StatusMotion
	StatusConfig *StatusConfig
	StatusIo     *StatusIo
	StatusTask   *StatusTask
	StatusInterp *StatusInterp

	CommandParams *CommandParams
	PParams       *PParams

	InterpName string
}

func (c *Container) HasPParams() bool       { return c.PParams != nil }
func (c *Container) HasCommandParams() bool { return c.CommandParams != nil }
func (c *Container) HasStatusMotion() bool  { return c.StatusMotion != nil }
func (c *Container) HasStatusConfig() bool  { return c.StatusConfig != nil }
func (c *Container) HasStatusIo() bool      { return c.StatusIo != nil }
func (c *Container) HasStatusTask() bool    { return c.StatusTask != nil }
func (c *Container) HasStatusInterp() bool  { return c.StatusInterp != nil }

// Clear zeroes every field so the instance can be reused for the next
// decode without leaking a previous message's sub-payloads.
func (c *Container) Clear() {
	c.Type = MTUnknown
	c.Notes = nil
	c.StatusMotion = nil
	c.StatusConfig = nil
	c.StatusIo = nil
	c.StatusTask = nil
	c.StatusInterp = nil
	c.CommandParams = nil
	c.PParams = nil
	c.InterpName = ""
}
