package domain

type Role string

const (
	RoleHost     Role = "host"
	RoleFollower Role = "follower"
)

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseLoading      Phase = "loading"
	PhaseReconciling  Phase = "reconciling"
	PhaseSynced       Phase = "synced"
	PhaseDisconnected Phase = "disconnected"
)
