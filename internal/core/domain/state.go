package domain

// State is a node of the coinjoin participation state graph.
type State int

const (
	StateDisabled State = iota
	StateManualCoinJoin
	StateStopped
	StateManualPlaying
	StateManualFinished
	StateAutoCoinJoin
	StateAutoStarting
	StatePaused
	StateAutoPlaying
	StateAutoFinished
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateManualCoinJoin:
		return "MANUAL_COINJOIN"
	case StateStopped:
		return "STOPPED"
	case StateManualPlaying:
		return "MANUAL_PLAYING"
	case StateManualFinished:
		return "MANUAL_FINISHED"
	case StateAutoCoinJoin:
		return "AUTO_COINJOIN"
	case StateAutoStarting:
		return "AUTO_STARTING"
	case StatePaused:
		return "PAUSED"
	case StateAutoPlaying:
		return "AUTO_PLAYING"
	case StateAutoFinished:
		return "AUTO_FINISHED"
	default:
		return "UNKNOWN_STATE"
	}
}

// Trigger is a domain verb requesting a state transition.
type Trigger int

const (
	TriggerAutoCoinJoinOn Trigger = iota
	TriggerAutoCoinJoinOff
	TriggerAutoCoinJoinEntered
	TriggerManualCoinJoinEntered
	TriggerPause
	TriggerPlay
	TriggerStop
	TriggerPlebStop
	TriggerRoundStartFailed
	TriggerRoundStart
)

func (t Trigger) String() string {
	switch t {
	case TriggerAutoCoinJoinOn:
		return "AUTO_COINJOIN_ON"
	case TriggerAutoCoinJoinOff:
		return "AUTO_COINJOIN_OFF"
	case TriggerAutoCoinJoinEntered:
		return "AUTO_COINJOIN_ENTERED"
	case TriggerManualCoinJoinEntered:
		return "MANUAL_COINJOIN_ENTERED"
	case TriggerPause:
		return "PAUSE"
	case TriggerPlay:
		return "PLAY"
	case TriggerStop:
		return "STOP"
	case TriggerPlebStop:
		return "PLEB_STOP"
	case TriggerRoundStartFailed:
		return "ROUND_START_FAILED"
	case TriggerRoundStart:
		return "ROUND_START"
	default:
		return "UNKNOWN_TRIGGER"
	}
}
