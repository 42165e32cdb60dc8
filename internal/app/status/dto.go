package status

import (
	"time"

	"hivescan/internal/domain/geo"
)

type Counters struct {
	Success int `json:"success"`
	Fail    int `json:"fail"`
	NoItems int `json:"noitems"`
	Skip    int `json:"skip"`
	Missed  int `json:"missed"`
	Captcha int `json:"captcha"`
}

type WorkerStatus struct {
	WorkerID  string    `json:"worker_id"`
	Hive      int       `json:"hive"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Proxy     string    `json:"proxy,omitempty"`
	Location  geo.Coord `json:"location"`
	LastScan  time.Time `json:"last_scan_date"`
	StartedAt time.Time `json:"starttime"`
	Counters
}

type OverseerStatus struct {
	Message         string    `json:"message"`
	Method          string    `json:"method"`
	Paused          bool      `json:"paused"`
	AccountsWorking int       `json:"accounts_working"`
	AccountsCaptcha int       `json:"accounts_captcha"`
	AccountsFailed  int       `json:"accounts_failed"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Snapshot struct {
	Overseer OverseerStatus          `json:"overseer"`
	Workers  map[string]WorkerStatus `json:"workers"`
}

type Request struct {
	WorkerID string
}

type Response struct {
	Status WorkerStatus `json:"status"`
}
