package command

import "time"

// Response bodies of the control API, as seen by the CLI.

type sessionResult struct {
	Status   string `json:"status"`
	Identity string `json:"identity"`
}

type activeSessions struct {
	Count      int      `json:"count"`
	Identities []string `json:"identities"`
}

type sessionInfo struct {
	Identity  string    `json:"identity"`
	Connected bool      `json:"connected"`
	CreatedAt time.Time `json:"created_at"`
	Uptime    string    `json:"uptime"`
}

type purgeResult struct {
	Identity string `json:"identity"`
	Purged   bool   `json:"purged"`
}

type pingResult struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ActiveCount int    `json:"active_count"`
}

type statusResult struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type healthResult struct {
	Health string `json:"health"`
	Ready  string `json:"ready"`
}
