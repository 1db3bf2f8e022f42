package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/catalog"
	"github.com/vexxhost/migratekit-cleanroom/internal/jobs"
	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
	"github.com/vexxhost/migratekit-cleanroom/internal/target"
)

// ValidationResult is the outcome of the threat or Defender scan of the
// recovered entity.
type ValidationResult struct {
	Output           string          `json:"output"`
	FailureReason    string          `json:"failure_reason"`
	Name             string          `json:"name"`
	ValidationStatus int64           `json:"validation_status"`
	ThreatInfo       json.RawMessage `json:"threat_info,omitempty"`
}

// RecoveryPoint is the point in time the entity recovers from.
type RecoveryPoint struct {
	Category      string `json:"category"`
	Point         int64  `json:"point"`
	InheritedFrom string `json:"inherited_from"`
}

// Proxy is the access node recovered VMs are restored through.
type Proxy struct {
	Automatic bool            `json:"automatic"`
	Client    *catalog.Client `json:"client,omitempty"`
}

type entityPayload struct {
	ID                             *session.FlexInt `json:"id"`
	Name                           *string          `json:"name"`
	DestinationName                *string          `json:"destinationName"`
	VMGroup                        *session.Ref     `json:"vmGroup"`
	RecoveryStatusNotReadyCategory *session.FlexInt `json:"recoveryStatusNotReadyCategory"`
	LastRecoveryJobID              *session.FlexInt `json:"lastRecoveryJobId"`
	RecoveryStatus                 *session.FlexInt `json:"recoveryStatus"`
	ValidationStatus               *session.FlexInt `json:"validationStatus"`
	ValidationResults              *[]struct {
		Output           string          `json:"output"`
		FailureReason    string          `json:"failureReason"`
		Name             string          `json:"name"`
		ValidationStatus session.FlexInt `json:"validationStatus"`
		ThreatInfo       json.RawMessage `json:"threatInfo"`
	} `json:"validationResults"`
	RecoveryPointDetails struct {
		EntityRecoveryPointCategory string          `json:"entityRecoveryPointCategory"`
		EntityRecoveryPoint         session.FlexInt `json:"entityRecoveryPoint"`
		InheritedFrom               string          `json:"inheritedFrom"`
	} `json:"recoveryPointDetails"`
	Workload              *session.FlexInt `json:"workload"`
	OSType                *session.FlexInt `json:"osType"`
	Client                *session.Ref     `json:"client"`
	Instance              *session.Ref     `json:"instance"`
	RecoveryConfiguration *struct {
		Configuration map[string]json.RawMessage `json:"configuration"`
		ImageDetails  struct {
			VMTemplate struct {
				Name string `json:"name"`
			} `json:"vmTemplate"`
		} `json:"imageDetails"`
	} `json:"recoveryConfiguration"`
}

// Entity is one workload of a recovery group as of its last refresh.
type Entity struct {
	deps      Deps
	id        int64
	groupName string
	target    *target.Target

	payloadID        int64
	sourceVM         string
	destinationVM    string
	parent           string
	readiness        status.Readiness
	recoveryStatus   status.RecoveryStatus
	validationStatus status.ValidationStatus
	validation       *ValidationResult
	recoveryPoint    RecoveryPoint
	workload         status.Workload
	osType           *int64
	sourceClient     string
	sourceInstance   string
	lastRecoveryJob  int64
	lastRestoreJob   int64
	hasRestoreJob    bool
	recoveryConfig   json.RawMessage
	recoveryImage    string
}

// Refresh fetches the entity detail and decodes it into the status model.
func (e *Entity) Refresh(ctx context.Context) error {
	op := "get recovery entity"
	resp, err := e.deps.Backend.Do(ctx, http.MethodGet, session.Path(e.deps.Backend.Endpoints.RecoveryEntity, e.id), nil)
	if err != nil {
		return err
	}

	var keys map[string]json.RawMessage
	if err := resp.Decode(op, &keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		return session.ResponseError(op, "response contains no data")
	}

	var p entityPayload
	if err := resp.Decode(op, &p); err != nil {
		return err
	}
	return e.decode(ctx, op, &p)
}

func (e *Entity) decode(ctx context.Context, op string, p *entityPayload) error {
	switch {
	case p.Name == nil:
		return session.MissingKey(op, "name")
	case p.DestinationName == nil:
		return session.MissingKey(op, "destinationName")
	case p.RecoveryStatusNotReadyCategory == nil:
		return session.MissingKey(op, "recoveryStatusNotReadyCategory")
	case p.LastRecoveryJobID == nil:
		return session.MissingKey(op, "lastRecoveryJobId")
	case p.RecoveryStatus == nil:
		return session.MissingKey(op, "recoveryStatus")
	case p.ValidationStatus == nil:
		return session.MissingKey(op, "validationStatus")
	case p.Workload == nil:
		return session.MissingKey(op, "workload")
	case p.Client == nil:
		return session.MissingKey(op, "client")
	case p.Instance == nil:
		return session.MissingKey(op, "instance")
	case p.VMGroup == nil:
		return session.MissingKey(op, "vmGroup")
	}

	readiness, err := status.DecodeReadiness(p.RecoveryStatusNotReadyCategory.Int64(), e.deps.Decode)
	if err != nil {
		return fmt.Errorf("failed to decode readiness of recovery entity %d: %w", e.id, err)
	}
	recoveryStatus, err := status.ParseRecoveryStatus(p.RecoveryStatus.Int64())
	if err != nil {
		return fmt.Errorf("failed to decode recovery status of recovery entity %d: %w", e.id, err)
	}
	validationStatus, err := status.ParseValidationStatus(p.ValidationStatus.Int64())
	if err != nil {
		return fmt.Errorf("failed to decode validation status of recovery entity %d: %w", e.id, err)
	}
	workload, err := status.ParseWorkload(p.Workload.Int64())
	if err != nil {
		return fmt.Errorf("failed to decode workload of recovery entity %d: %w", e.id, err)
	}

	var restoreJob int64
	var hasRestoreJob bool
	lastJob := p.LastRecoveryJobID.Int64()
	if lastJob != 0 {
		restoreJob, hasRestoreJob, err = jobs.RestoreJobFor(ctx, e.deps.Jobs, lastJob, *p.Name)
		if err != nil {
			return fmt.Errorf("failed to read phases of recovery job %d: %w", lastJob, err)
		}
	}

	// an empty list still counts as present
	var validation *ValidationResult
	if p.ValidationResults != nil && len(*p.ValidationResults) == 0 {
		validation = &ValidationResult{}
	} else if p.ValidationResults != nil {
		first := (*p.ValidationResults)[0]
		validation = &ValidationResult{
			Output:           first.Output,
			FailureReason:    first.FailureReason,
			Name:             first.Name,
			ValidationStatus: first.ValidationStatus.Int64(),
			ThreatInfo:       first.ThreatInfo,
		}
	}

	var config json.RawMessage
	var image string
	if p.RecoveryConfiguration != nil {
		image = p.RecoveryConfiguration.ImageDetails.VMTemplate.Name
	}
	if e.target != nil {
		if key, ok := e.target.PolicyType().ConfigurationKey(); ok {
			if p.RecoveryConfiguration == nil {
				return session.MissingKey(op, "recoveryConfiguration")
			}
			raw, found := p.RecoveryConfiguration.Configuration[key]
			if !found {
				return session.MissingKey(op, "recoveryConfiguration.configuration."+key)
			}
			config = raw
		}
	}

	if p.ID != nil {
		e.payloadID = p.ID.Int64()
	}
	e.sourceVM = *p.Name
	e.destinationVM = *p.DestinationName
	e.parent = p.VMGroup.Name
	e.readiness = readiness
	e.recoveryStatus = recoveryStatus
	e.validationStatus = validationStatus
	e.validation = validation
	e.recoveryPoint = RecoveryPoint{
		Category:      p.RecoveryPointDetails.EntityRecoveryPointCategory,
		Point:         p.RecoveryPointDetails.EntityRecoveryPoint.Int64(),
		InheritedFrom: p.RecoveryPointDetails.InheritedFrom,
	}
	e.workload = workload
	e.osType = optionalInt(p.OSType)
	e.sourceClient = p.Client.Name
	e.sourceInstance = p.Instance.Name
	e.lastRecoveryJob = lastJob
	e.lastRestoreJob = restoreJob
	e.hasRestoreJob = hasRestoreJob
	e.recoveryConfig = config
	e.recoveryImage = image

	log.WithFields(log.Fields{
		"entity_id":       e.id,
		"source_vm":       e.sourceVM,
		"recovery_status": recoveryStatus.String(),
		"readiness":       readiness.Label(),
	}).Debug("Decoded recovery entity")
	return nil
}

func (e *Entity) ID() int64             { return e.id }
func (e *Entity) SourceVM() string      { return e.sourceVM }
func (e *Entity) DestinationVM() string { return e.destinationVM }
func (e *Entity) GroupName() string     { return e.groupName }

// Parent is the VM group the entity was protected under.
func (e *Entity) Parent() string { return e.parent }

func (e *Entity) TargetName() string {
	if e.target == nil {
		return ""
	}
	return e.target.Name()
}

func (e *Entity) Readiness() status.Readiness { return e.readiness }

// ReadinessLabel is READY or the not-ready reason names.
func (e *Entity) ReadinessLabel() string { return e.readiness.Label() }

func (e *Entity) RecoveryStatus() status.RecoveryStatus     { return e.recoveryStatus }
func (e *Entity) ValidationStatus() status.ValidationStatus { return e.validationStatus }

// ValidationResults is nil unless the last recovery ran a threat or Defender scan.
func (e *Entity) ValidationResults() *ValidationResult { return e.validation }

func (e *Entity) RecoveryPoint() RecoveryPoint { return e.recoveryPoint }
func (e *Entity) Workload() status.Workload    { return e.workload }

// OSType is nil when the entity does not report one. Zero is Windows.
func (e *Entity) OSType() *int64 { return e.osType }

func (e *Entity) SourceClient() string { return e.sourceClient }

func (e *Entity) SourceAgent() string {
	name, _ := e.workload.AgentName()
	return name
}

func (e *Entity) SourceInstance() string { return e.sourceInstance }

// SourceSubclient is the VM group name, which doubles as the subclient.
func (e *Entity) SourceSubclient() string { return e.parent }

func (e *Entity) DestinationClient() string {
	if e.target == nil {
		return ""
	}
	return e.target.DestinationHypervisor()
}

func (e *Entity) DestinationAgent() string { return e.SourceAgent() }

func (e *Entity) DestinationInstance() string {
	if e.target == nil {
		return ""
	}
	name, _ := e.target.InstanceName()
	return name
}

// LastRecoveryJob is zero when the entity was never recovered.
func (e *Entity) LastRecoveryJob() int64 { return e.lastRecoveryJob }

// LastRestoreJob is the job of the last RESTORE_VM phase of the last recovery job.
func (e *Entity) LastRestoreJob() (int64, bool) { return e.lastRestoreJob, e.hasRestoreJob }

// RecoveryConfig is the vendor section of the entity's recovery configuration,
// nil when the target vendor has none.
func (e *Entity) RecoveryConfig() json.RawMessage { return e.recoveryConfig }

func (e *Entity) RecoveryImage() string { return e.recoveryImage }

// CheckEntityID reports whether the fetched payload belongs to this entity.
func (e *Entity) CheckEntityID() bool { return e.payloadID == e.id }

// DestinationProxy resolves the access node of the target. A client access
// node is looked up in the catalog; a client group yields an empty proxy.
func (e *Entity) DestinationProxy(ctx context.Context) (Proxy, error) {
	if e.target == nil {
		return Proxy{}, nil
	}
	node := e.target.AccessNode()
	switch {
	case node.Automatic:
		return Proxy{Automatic: true}, nil
	case node.Type == "Client":
		client, err := e.deps.Catalog.Client(ctx, node.Name)
		if err != nil {
			return Proxy{}, err
		}
		return Proxy{Client: &client}, nil
	}
	return Proxy{}, nil
}

// SourceClientObject resolves the source client in the catalog.
func (e *Entity) SourceClientObject(ctx context.Context) (catalog.Client, error) {
	return e.deps.Catalog.Client(ctx, e.sourceClient)
}

func (e *Entity) SourceAgentObject(ctx context.Context) (catalog.Agent, error) {
	client, err := e.SourceClientObject(ctx)
	if err != nil {
		return catalog.Agent{}, err
	}
	return e.deps.Catalog.Agent(ctx, client, e.SourceAgent())
}

func (e *Entity) SourceInstanceObject(ctx context.Context) (catalog.Instance, error) {
	agent, err := e.SourceAgentObject(ctx)
	if err != nil {
		return catalog.Instance{}, err
	}
	return e.deps.Catalog.Instance(ctx, agent, e.sourceInstance)
}

// EntitySummary is a serializable snapshot of the entity.
type EntitySummary struct {
	ID               int64             `json:"id"`
	Group            string            `json:"group"`
	Target           string            `json:"target"`
	SourceVM         string            `json:"source_vm"`
	DestinationVM    string            `json:"destination_vm"`
	Workload         string            `json:"workload"`
	Readiness        string            `json:"readiness"`
	RecoveryStatus   string            `json:"recovery_status"`
	ValidationStatus string            `json:"validation_status"`
	Validation       *ValidationResult `json:"validation,omitempty"`
	RecoveryPoint    RecoveryPoint     `json:"recovery_point"`
	LastRecoveryJob  int64             `json:"last_recovery_job"`
	LastRestoreJob   int64             `json:"last_restore_job,omitempty"`
	RecoveryImage    string            `json:"recovery_image,omitempty"`
}

func (e *Entity) Summary() EntitySummary {
	return EntitySummary{
		ID:               e.id,
		Group:            e.groupName,
		Target:           e.TargetName(),
		SourceVM:         e.sourceVM,
		DestinationVM:    e.destinationVM,
		Workload:         e.workload.String(),
		Readiness:        e.readiness.Label(),
		RecoveryStatus:   e.recoveryStatus.String(),
		ValidationStatus: e.validationStatus.String(),
		Validation:       e.validation,
		RecoveryPoint:    e.recoveryPoint,
		LastRecoveryJob:  e.lastRecoveryJob,
		LastRestoreJob:   e.lastRestoreJob,
		RecoveryImage:    e.recoveryImage,
	}
}
