// Package jobs reads the phase list of disaster recovery orchestration jobs.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

// PhaseName identifies a step of a recovery job.
type PhaseName int

const (
	PhaseUnset           PhaseName = -1
	PhaseScriptExecution PhaseName = 0
	PhasePowerOn         PhaseName = 1
	PhaseReplication     PhaseName = 7
	PhaseFinalize        PhaseName = 26
	PhaseRestoreVM       PhaseName = 51
	PhaseVMLevel         PhaseName = 54
)

var phaseNames = map[PhaseName][2]string{
	PhaseScriptExecution: {"SCRIPT_EXECUTION", "Script Execution"},
	PhasePowerOn:         {"POWER_ON", "Power On"},
	PhaseReplication:     {"REPLICATION", "Replication"},
	PhaseFinalize:        {"FINALIZE", "Finalize"},
	PhaseRestoreVM:       {"RESTORE_VM", "Restore VM"},
	PhaseVMLevel:         {"VM_LEVEL", "VM Level"},
}

func (p PhaseName) String() string {
	if p == PhaseUnset {
		return ""
	}
	if names, ok := phaseNames[p]; ok {
		return names[0]
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(p))
}

// Text is the display name of the phase.
func (p PhaseName) Text() string {
	if names, ok := phaseNames[p]; ok {
		return names[1]
	}
	return p.String()
}

// Phase is one step of a recovery job for one machine.
type Phase struct {
	Name         PhaseName `json:"name"`
	Status       int       `json:"status"`
	StartTime    int64     `json:"start_time"`
	EndTime      int64     `json:"end_time"`
	Machine      string    `json:"machine"`
	ErrorMessage string    `json:"error_message,omitempty"`
	JobID        int64     `json:"job_id,omitempty"`
}

// Succeeded reports a phase status of zero.
func (p Phase) Succeeded() bool { return p.Status == 0 }

// Source maps a recovery job to its phases grouped by source machine name.
type Source interface {
	Phases(ctx context.Context, jobID int64) (map[string][]Phase, error)
}

// Client reads job statistics from the backup server.
type Client struct {
	backend session.Backend
}

func NewClient(backend session.Backend) *Client {
	return &Client{backend: backend}
}

type timeValue struct {
	Time session.FlexInt `json:"time"`
}

type jobStats struct {
	Job    json.RawMessage `json:"job"`
	Errors []struct {
		ErrList []struct {
			ErrorCode     session.FlexInt `json:"errorCode"`
			ErrLogMessage string          `json:"errLogMessage"`
		} `json:"errList"`
	} `json:"errors"`
}

type machineStats struct {
	Client struct {
		ClientName string `json:"clientName"`
	} `json:"client"`
	Phase []struct {
		Phase     *session.FlexInt `json:"phase"`
		Status    session.FlexInt  `json:"status"`
		StartTime timeValue        `json:"startTime"`
		EndTime   timeValue        `json:"endTime"`
		Entity    struct {
			ClientName string `json:"clientName"`
		} `json:"entity"`
		PhaseInfo struct {
			Job []struct {
				JobID   session.FlexInt `json:"jobid"`
				Failure struct {
					ErrorMessage string `json:"errorMessage"`
				} `json:"failure"`
			} `json:"job"`
		} `json:"phaseInfo"`
	} `json:"phase"`
}

// Phases fetches the phase list of jobID keyed by source machine name.
func (c *Client) Phases(ctx context.Context, jobID int64) (map[string][]Phase, error) {
	op := fmt.Sprintf("recovery job %d phases", jobID)
	resp, err := c.backend.Do(ctx, http.MethodGet, session.Path(c.backend.Endpoints.RecoveryJobStats, jobID), nil)
	if err != nil {
		return nil, err
	}

	var stats jobStats
	if err := resp.Decode(op, &stats); err != nil {
		return nil, err
	}
	if stats.Job == nil {
		for _, e := range stats.Errors {
			for _, item := range e.ErrList {
				if item.ErrorCode != 0 {
					return nil, session.ResponseError(op, "%s", item.ErrLogMessage)
				}
			}
		}
		return nil, session.MissingKey(op, "job")
	}

	var machines []machineStats
	if err := json.Unmarshal(stats.Job, &machines); err != nil {
		return nil, session.MalformedBody(op, err)
	}

	out := make(map[string][]Phase, len(machines))
	for _, machine := range machines {
		phases := make([]Phase, 0, len(machine.Phase))
		for _, raw := range machine.Phase {
			p := Phase{
				Name:      PhaseUnset,
				Status:    int(raw.Status),
				StartTime: raw.StartTime.Time.Int64(),
				EndTime:   raw.EndTime.Time.Int64(),
				Machine:   raw.Entity.ClientName,
			}
			if raw.Phase != nil {
				p.Name = PhaseName(*raw.Phase)
			}
			if len(raw.PhaseInfo.Job) > 0 {
				p.JobID = raw.PhaseInfo.Job[0].JobID.Int64()
				p.ErrorMessage = raw.PhaseInfo.Job[0].Failure.ErrorMessage
			}
			phases = append(phases, p)
		}
		out[machine.Client.ClientName] = phases
	}

	log.WithFields(log.Fields{
		"job_id":   jobID,
		"machines": len(out),
	}).Debug("Fetched recovery job phases")
	return out, nil
}

// LastRestoreJob returns the job id of the last restore VM phase that carries one.
func LastRestoreJob(phases []Phase) (int64, bool) {
	var (
		id    int64
		found bool
	)
	for _, p := range phases {
		if p.Name == PhaseRestoreVM && p.JobID != 0 {
			id = p.JobID
			found = true
		}
	}
	return id, found
}

// RestoreJobFor looks up the restore job of machine in the recovery job jobID.
func RestoreJobFor(ctx context.Context, source Source, jobID int64, machine string) (int64, bool, error) {
	phases, err := source.Phases(ctx, jobID)
	if err != nil {
		return 0, false, err
	}
	id, ok := LastRestoreJob(phases[machine])
	return id, ok, nil
}
