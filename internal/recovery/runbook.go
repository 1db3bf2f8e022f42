package recovery

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
	"github.com/vexxhost/migratekit-cleanroom/internal/target"
)

const (
	RunbookWorkloadVM    = "VM"
	RunbookWorkloadFiles = "FILES"

	placeholderName        = "string"
	placeholderVMGUID      = "<vm_guid>"
	defaultSourceVendor    = "VMW"
	defaultDaysToExpire    = 7
	recoveryPointInherited = "RECOVERY_GROUP"
	recoveryPointLatest    = "LATEST"
)

// RunbookEntity is one workload to add to a new runbook.
type RunbookEntity struct {
	Workload       string `yaml:"workload" json:"workload"`
	InstanceID     int64  `yaml:"instance_id" json:"instance_id"`
	InstanceName   string `yaml:"instance_name" json:"instance_name"`
	ClientID       int64  `yaml:"client_id" json:"client_id"`
	ClientName     string `yaml:"client_name" json:"client_name"`
	HypervisorID   int64  `yaml:"hypervisor_id" json:"hypervisor_id"`
	HypervisorName string `yaml:"hypervisor_name" json:"hypervisor_name"`
	BackupSetID    int64  `yaml:"backupset_id" json:"backupset_id"`
	BackupSetName  string `yaml:"backupset_name" json:"backupset_name"`
	ExecutionOrder int    `yaml:"execution_order" json:"execution_order"`

	// VM workloads
	VMGroupID    int64  `yaml:"vm_group_id" json:"vm_group_id"`
	VMGUID       string `yaml:"vm_guid" json:"vm_guid"`
	VMName       string `yaml:"vm_name" json:"vm_name"`
	SourceVendor string `yaml:"source_vendor" json:"source_vendor"`

	// FILES workloads
	SubclientID   int64  `yaml:"subclient_id" json:"subclient_id"`
	SubclientName string `yaml:"subclient_name" json:"subclient_name"`
}

// RunbookSpec names a runbook and the workloads it recovers.
type RunbookSpec struct {
	Name     string          `yaml:"name" json:"name"`
	Entities []RunbookEntity `yaml:"entities" json:"entities"`
}

type RunbookPayload struct {
	Name            string                 `json:"name"`
	Target          *target.CreateRequest  `json:"target"`
	Entities        []RunbookEntityPayload `json:"entities"`
	AdvancedOptions RunbookAdvancedOptions `json:"advancedOptions"`
}

type RunbookEntityPayload struct {
	Instance             session.Ref          `json:"instance"`
	BackupSet            session.Ref          `json:"backupSet"`
	Client               session.Ref          `json:"client"`
	Workload             int                  `json:"workload"`
	ExecutionOrder       executionOrder       `json:"executionOrder"`
	RecoveryPointDetails recoveryPointDetails `json:"recoveryPointDetails"`
	VMGroup              *idRef               `json:"vmGroup,omitempty"`
	VirtualMachine       *virtualMachine      `json:"virtualMachine,omitempty"`
	SourceVendor         string               `json:"sourceVendor,omitempty"`
	Subclient            *session.Ref         `json:"subclient,omitempty"`
}

type executionOrder struct {
	Priority int `json:"priority"`
}

type recoveryPointDetails struct {
	InheritedFrom               string `json:"inheritedFrom"`
	EntityRecoveryPoint         int64  `json:"entityRecoveryPoint"`
	EntityRecoveryPointCategory string `json:"entityRecoveryPointCategory"`
}

type virtualMachine struct {
	GUID string `json:"GUID"`
	Name string `json:"name"`
}

type RunbookAdvancedOptions struct {
	PostRecoveryActions          []postRecoveryAction      `json:"postRecoveryActions"`
	DelayBetweenPriorityMachines int                       `json:"delayBetweenPriorityMachines"`
	ContinueOnFailure            bool                      `json:"continueOnFailure"`
	RecoveryExpirationOptions    recoveryExpirationOptions `json:"recoveryExpirationOptions"`
}

type postRecoveryAction struct {
	ScriptCredentials struct{} `json:"scriptCredentials"`
	GuestCredentials  struct{} `json:"guestCredentials"`
}

type recoveryExpirationOptions struct {
	EnableExpirationOption bool  `json:"enableExpirationOption"`
	DaysToExpire           int   `json:"daysToExpire"`
	IsRescuedCommServe     bool  `json:"isRescuedCommServe"`
	ExpirationTime         int64 `json:"expirationTime"`
}

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}

func ref(id int64, name string) session.Ref {
	return session.Ref{ID: session.FlexInt(id), Name: orPlaceholder(name, placeholderName)}
}

// BuildRunbookPayload assembles the create-runbook payload. The target section
// follows the same rules as a standalone target creation.
func BuildRunbookPayload(spec RunbookSpec, tgt target.Spec, region *target.Region, node *target.AccessNodeSpec) (*RunbookPayload, error) {
	op := "build runbook payload"
	if spec.Name == "" {
		return nil, session.InvalidArgument(op, "missing or invalid runbook name")
	}
	if len(spec.Entities) == 0 {
		return nil, session.InvalidArgument(op, "payload cannot be empty")
	}

	entities := make([]RunbookEntityPayload, 0, len(spec.Entities))
	for _, item := range spec.Entities {
		var workload status.Workload
		switch item.Workload {
		case RunbookWorkloadVM:
			workload = status.WorkloadVirtualServer
		case RunbookWorkloadFiles:
			workload = status.WorkloadFileSystem
		default:
			return nil, session.InvalidArgument(op, "invalid workload type %q", item.Workload)
		}

		client := ref(item.ClientID, item.ClientName)
		if item.HypervisorID != 0 {
			client.ID = session.FlexInt(item.HypervisorID)
		}
		if item.HypervisorName != "" {
			client.Name = item.HypervisorName
		}

		entity := RunbookEntityPayload{
			Instance:       ref(item.InstanceID, item.InstanceName),
			BackupSet:      ref(item.BackupSetID, item.BackupSetName),
			Client:         client,
			Workload:       int(workload),
			ExecutionOrder: executionOrder{Priority: item.ExecutionOrder},
			RecoveryPointDetails: recoveryPointDetails{
				InheritedFrom:               recoveryPointInherited,
				EntityRecoveryPointCategory: recoveryPointLatest,
			},
		}
		switch workload {
		case status.WorkloadVirtualServer:
			entity.VMGroup = &idRef{ID: item.VMGroupID}
			entity.VirtualMachine = &virtualMachine{
				GUID: orPlaceholder(item.VMGUID, placeholderVMGUID),
				Name: orPlaceholder(item.VMName, placeholderName),
			}
			entity.SourceVendor = orPlaceholder(item.SourceVendor, defaultSourceVendor)
		case status.WorkloadFileSystem:
			sub := ref(item.SubclientID, item.SubclientName)
			entity.Subclient = &sub
		}
		entities = append(entities, entity)
	}

	targetPayload, err := target.BuildCreateRequest(tgt, region, node)
	if err != nil {
		return nil, err
	}

	return &RunbookPayload{
		Name:     spec.Name,
		Target:   targetPayload,
		Entities: entities,
		AdvancedOptions: RunbookAdvancedOptions{
			PostRecoveryActions: []postRecoveryAction{{}},
			RecoveryExpirationOptions: recoveryExpirationOptions{
				EnableExpirationOption: true,
				DaysToExpire:           defaultDaysToExpire,
				IsRescuedCommServe:     true,
			},
		},
	}, nil
}

// Runbooks creates cleanroom runbooks, which the server stores as recovery groups.
type Runbooks struct {
	backend session.Backend
}

func NewRunbooks(backend session.Backend) *Runbooks {
	return &Runbooks{backend: backend}
}

// Create submits the payload and returns the new recovery group.
func (r *Runbooks) Create(ctx context.Context, payload *RunbookPayload) (session.Ref, error) {
	op := "create runbook"
	if payload == nil {
		return session.Ref{}, session.InvalidArgument(op, "payload cannot be empty")
	}

	resp, err := r.backend.Do(ctx, http.MethodPost, r.backend.Endpoints.CreateRunbook, payload)
	if err != nil {
		return session.Ref{}, err
	}
	var body struct {
		RecoveryGroup *struct {
			ID   *session.FlexInt `json:"id"`
			Name string           `json:"name"`
		} `json:"recoveryGroup"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return session.Ref{}, err
	}
	if body.RecoveryGroup == nil || body.RecoveryGroup.ID == nil {
		return session.Ref{}, session.MissingKey(op, "recoveryGroup.id")
	}

	group := session.Ref{ID: *body.RecoveryGroup.ID, Name: body.RecoveryGroup.Name}
	if group.Name == "" {
		group.Name = payload.Name
	}
	log.WithFields(log.Fields{
		"group_id":   group.ID.Int64(),
		"group_name": group.Name,
		"entities":   len(payload.Entities),
	}).Info("✅ Cleanroom runbook created")
	return group, nil
}
