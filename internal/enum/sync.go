package enum

type SyncEventType string

const (
	SyncEventStarted      SyncEventType = "sync.started"
	SyncEventSkipped      SyncEventType = "sync.skipped"
	SyncEventConnectError SyncEventType = "sync.connect.error"
	SyncEventError        SyncEventType = "sync.error"
	SyncEventAborted      SyncEventType = "sync.aborted"
	SyncEventAbortTimeout SyncEventType = "sync.abort.timeout"
	SyncEventCompleted    SyncEventType = "sync.completed"
)

func (t SyncEventType) String() string {
	return string(t)
}

type SyncEventStatus string

const (
	SyncStatusSent    SyncEventStatus = "sent"
	SyncStatusError   SyncEventStatus = "error"
	SyncStatusSkipped SyncEventStatus = "skipped"
)

func (s SyncEventStatus) String() string {
	return string(s)
}

// SyncPhase is the orchestrator state a pass is currently in.
type SyncPhase string

const (
	SyncPhaseIdle       SyncPhase = "idle"
	SyncPhaseConnecting SyncPhase = "connecting"
	SyncPhaseResuming   SyncPhase = "resuming"
	SyncPhaseFetching   SyncPhase = "fetching"
	SyncPhaseIngesting  SyncPhase = "ingesting"
	SyncPhaseCommitting SyncPhase = "committing"
	SyncPhaseAborting   SyncPhase = "aborting"
)

func (p SyncPhase) String() string {
	return string(p)
}

// Abortable reports whether an abort request is honoured while in this phase.
func (p SyncPhase) Abortable() bool {
	switch p {
	case SyncPhaseConnecting, SyncPhaseResuming, SyncPhaseFetching, SyncPhaseIngesting:
		return true
	}
	return false
}

// SyncCommand is a control request received from the message bus.
type SyncCommand string

const (
	SyncCommandStart SyncCommand = "start"
	SyncCommandStop  SyncCommand = "stop"
)

func (c SyncCommand) String() string {
	return string(c)
}
