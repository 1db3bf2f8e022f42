package session

import (
	"fmt"
	"net/url"
)

// Endpoints holds the path templates of every backend call. Templates take
// numeric ids through %d and names through %s.
type Endpoints struct {
	RecoveryGroups      string `yaml:"recovery_groups"`
	RecoveryGroup       string `yaml:"recovery_group"`
	RecoverGroup        string `yaml:"recover_group"`
	CleanupGroup        string `yaml:"cleanup_group"`
	GroupThreatsCount   string `yaml:"group_threats_count"`
	RecoveryEntity      string `yaml:"recovery_entity"`
	RecoveryTargets     string `yaml:"recovery_targets"`
	RecoveryTarget      string `yaml:"recovery_target"`
	RunbookTarget       string `yaml:"runbook_target"`
	CreateRunbookTarget string `yaml:"create_runbook_target"`
	CreateRunbook       string `yaml:"create_runbook"`
	RecoveryJobStats    string `yaml:"recovery_job_stats"`
	ClientByName        string `yaml:"client_by_name"`
	ClientAgents        string `yaml:"client_agents"`
	AgentInstances      string `yaml:"agent_instances"`

	CommServeRecovery          string `yaml:"commserve_recovery"`
	CommServeRecoveryRequests  string `yaml:"commserve_recovery_requests"`
	CommServeRecoveryLicense   string `yaml:"commserve_recovery_license"`
	CommServeRecoveryRetention string `yaml:"commserve_recovery_retention"`
	CommServeBackupsets        string `yaml:"commserve_backupsets"`
}

// DefaultEndpoints returns the v4 REST layout of the backup server.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		RecoveryGroups:      "V4/recoverygroups",
		RecoveryGroup:       "V4/recoverygroup/%d",
		RecoverGroup:        "V4/recoverygroup/%d/recover",
		CleanupGroup:        "V4/recoverygroup/cleanup",
		GroupThreatsCount:   "V4/recoverygroup/%d/threats-count",
		RecoveryEntity:      "V4/recoveryentity/%d",
		RecoveryTargets:     "V4/recoverytargets",
		RecoveryTarget:      "V4/recoverytarget/%d",
		RunbookTarget:       "V4/runbook/target/%d",
		CreateRunbookTarget: "V4/runbook/target",
		CreateRunbook:       "V4/cleanroom/runbook",
		RecoveryJobStats:    "DRorchestration/replicationStats?jobId=%d",
		ClientByName:        "Client/byName(clientName='%s')",
		ClientAgents:        "Agent?clientId=%d",
		AgentInstances:      "Instance?clientId=%d&applicationId=%d",

		CommServeRecovery:          "V4/commserverecovery",
		CommServeRecoveryRequests:  "V4/commserverecovery?csGuid=%s&showOnlyActiveRequests=true",
		CommServeRecoveryLicense:   "V4/commserverecovery/license/%s",
		CommServeRecoveryRetention: "V4/commserverecovery/retention/%s",
		CommServeBackupsets:        "V4/commserverecovery/backupsets/%s",
	}
}

// WithDefaults fills every empty template from DefaultEndpoints.
func (e Endpoints) WithDefaults() Endpoints {
	d := DefaultEndpoints()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&e.RecoveryGroups, d.RecoveryGroups)
	fill(&e.RecoveryGroup, d.RecoveryGroup)
	fill(&e.RecoverGroup, d.RecoverGroup)
	fill(&e.CleanupGroup, d.CleanupGroup)
	fill(&e.GroupThreatsCount, d.GroupThreatsCount)
	fill(&e.RecoveryEntity, d.RecoveryEntity)
	fill(&e.RecoveryTargets, d.RecoveryTargets)
	fill(&e.RecoveryTarget, d.RecoveryTarget)
	fill(&e.RunbookTarget, d.RunbookTarget)
	fill(&e.CreateRunbookTarget, d.CreateRunbookTarget)
	fill(&e.CreateRunbook, d.CreateRunbook)
	fill(&e.RecoveryJobStats, d.RecoveryJobStats)
	fill(&e.ClientByName, d.ClientByName)
	fill(&e.ClientAgents, d.ClientAgents)
	fill(&e.AgentInstances, d.AgentInstances)
	fill(&e.CommServeRecovery, d.CommServeRecovery)
	fill(&e.CommServeRecoveryRequests, d.CommServeRecoveryRequests)
	fill(&e.CommServeRecoveryLicense, d.CommServeRecoveryLicense)
	fill(&e.CommServeRecoveryRetention, d.CommServeRecoveryRetention)
	fill(&e.CommServeBackupsets, d.CommServeBackupsets)
	return e
}

// Path expands a template. String arguments are path-escaped.
func Path(template string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			escaped[i] = url.PathEscape(s)
			continue
		}
		escaped[i] = a
	}
	return fmt.Sprintf(template, escaped...)
}
