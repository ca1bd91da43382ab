package server

import (
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is one shorts or subtitles flow started over HTTP.
type Run struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    RunStatus       `json:"status"`
	Job       *types.Job      `json:"job,omitempty"`
	RunDir    string          `json:"run_dir,omitempty"`
	Output    string          `json:"output,omitempty"`
	Manifest  *types.Manifest `json:"manifest,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Event is pushed to WebSocket subscribers of a run.
type Event struct {
	RunID       string     `json:"run_id"`
	Status      RunStatus  `json:"status"`
	Job         *types.Job `json:"job,omitempty"`
	Message     string     `json:"message,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type shortsRequest struct {
	Video  string   `json:"video"`
	Audio  string   `json:"audio"`
	Images []string `json:"images"`
	Loop   bool     `json:"loop"`
}

type subtitlesRequest struct {
	Audio string `json:"audio"`
	Burn  string `json:"burn"`
	Top   string `json:"top"`
}
