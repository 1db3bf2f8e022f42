package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/catalog"
	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
	"github.com/vexxhost/migratekit-cleanroom/internal/target"
)

const (
	newTargetSuffix     = "-Target"
	newHypervisorSuffix = "-Hypervisor"
)

// RecoverOptions are the scan flags requested for one recovery submission.
// A scan already enabled on the group is always sent enabled.
type RecoverOptions struct {
	ThreatScan          bool
	WindowsDefenderScan bool
}

// EntityState is the raw status pair of one entity as listed in its group.
// A nil field means the key was absent.
type EntityState struct {
	RecoveryStatus   *int64 `json:"recovery_status"`
	NotReadyCategory *int64 `json:"not_ready_category"`
}

type groupSettings struct {
	ID         session.FlexInt `json:"id"`
	Name       string          `json:"name"`
	ThreatScan struct {
		EnableThreatScan          bool `json:"enableThreatScan"`
		EnableWindowsDefenderScan bool `json:"enableWindowsDefenderScan"`
	} `json:"threatScan"`
	AdvancedOptions struct {
		EnableAutoScale         bool `json:"enableAutoScale"`
		PowerOffVMAfterRecovery bool `json:"powerOffVmAfterRecovery"`
	} `json:"advancedOptions"`
}

// entityRecord is one element of the group's entities list.
type entityRecord struct {
	ID                             session.FlexInt  `json:"id"`
	Name                           *string          `json:"name"`
	RecoveryStatus                 *session.FlexInt `json:"recoveryStatus"`
	RecoveryStatusNotReadyCategory *session.FlexInt `json:"recoveryStatusNotReadyCategory"`
	OSType                         *session.FlexInt `json:"osType"`
	Target                         *session.Ref     `json:"target"`
}

// Group is one recovery group as of its last refresh. It owns the target
// its entities recover into and the catalog of those entities.
type Group struct {
	deps Deps
	id   int64
	name string

	settings groupSettings
	records  []entityRecord
	raw      []map[string]any

	target   *target.Target
	entities *Entities
}

// NewGroup resolves a group by name. A zero id is looked up in the group catalog.
func NewGroup(ctx context.Context, deps Deps, name string, id int64) (*Group, error) {
	if name == "" {
		return nil, session.InvalidArgument("recovery group", "recovery group name is required")
	}
	if id == 0 {
		groups, err := NewGroups(ctx, deps)
		if err != nil {
			return nil, err
		}
		found, ok := groups.ID(name)
		if !ok {
			return nil, session.NotFound("recovery group", "no recovery group exists with name: %s", name)
		}
		id = found
	}

	g := &Group{
		deps: deps,
		id:   id,
		name: name,
	}
	g.entities = &Entities{deps: deps, groupName: name}
	if err := g.RefreshAll(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Refresh re-reads the group payload. The target is kept as is.
func (g *Group) Refresh(ctx context.Context) error {
	op := "get recovery group"
	resp, err := g.deps.Backend.Do(ctx, http.MethodGet, session.Path(g.deps.Backend.Endpoints.RecoveryGroup, g.id), nil)
	if err != nil {
		return err
	}

	var body struct {
		RecoveryGroup *groupSettings    `json:"recoveryGroup"`
		Entities      []json.RawMessage `json:"entities"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return err
	}
	if body.RecoveryGroup == nil {
		return session.MissingKey(op, "recoveryGroup")
	}

	records := make([]entityRecord, 0, len(body.Entities))
	raw := make([]map[string]any, 0, len(body.Entities))
	for i, item := range body.Entities {
		var rec entityRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return session.MalformedBody(op, fmt.Errorf("entities[%d]: %w", i, err))
		}
		var doc map[string]any
		if err := json.Unmarshal(item, &doc); err != nil {
			return session.MalformedBody(op, fmt.Errorf("entities[%d]: %w", i, err))
		}
		records = append(records, rec)
		raw = append(raw, doc)
	}

	g.settings = *body.RecoveryGroup
	g.records = records
	g.raw = raw
	g.entities.setIDs(g.EntityIDs())

	log.WithFields(log.Fields{
		"group_id":   g.id,
		"group_name": g.name,
		"entities":   len(records),
	}).Debug("Loaded recovery group")
	return nil
}

// RefreshAll re-reads the group payload and rebuilds its target from the
// first entity's target reference.
func (g *Group) RefreshAll(ctx context.Context) error {
	if err := g.Refresh(ctx); err != nil {
		return err
	}

	if len(g.records) == 0 || g.records[0].Target == nil || g.records[0].Target.Name == "" {
		g.target = nil
		g.entities.target = nil
		return nil
	}

	embedded := g.records[0].Target
	tgt, err := target.New(ctx, g.deps.Backend, embedded.Name, embedded.ID.Int64())
	if err != nil {
		return fmt.Errorf("failed to resolve target of recovery group %s: %w", g.name, err)
	}
	g.target = tgt
	g.entities.target = tgt
	return nil
}

// Delete removes the group on the server and returns its success flag.
func (g *Group) Delete(ctx context.Context) (bool, error) {
	op := "delete recovery group"
	resp, err := g.deps.Backend.Do(ctx, http.MethodDelete, session.Path(g.deps.Backend.Endpoints.RecoveryGroup, g.id), nil)
	if err != nil {
		return false, err
	}
	ok, err := session.DeleteResult(op, resp)
	if err != nil {
		return false, err
	}

	log.WithFields(log.Fields{
		"group_id":   g.id,
		"group_name": g.name,
	}).Info("🗑️ Recovery group deleted")
	return ok, nil
}

func (g *Group) ID() int64    { return g.id }
func (g *Group) Name() string { return g.name }

// Target is nil when the group has no entities.
func (g *Group) Target() *target.Target { return g.target }

func (g *Group) Entities() *Entities { return g.entities }

// TargetName is the target name as embedded in the first entity.
func (g *Group) TargetName() string {
	if len(g.records) == 0 || g.records[0].Target == nil {
		return ""
	}
	return g.records[0].Target.Name
}

func (g *Group) EntityIDs() []int64 {
	ids := make([]int64, 0, len(g.records))
	for _, rec := range g.records {
		ids = append(ids, rec.ID.Int64())
	}
	return ids
}

// EntityNames lists the names of entities that have one.
func (g *Group) EntityNames() []string {
	names := make([]string, 0, len(g.records))
	for _, rec := range g.records {
		if rec.Name != nil {
			names = append(names, *rec.Name)
		}
	}
	return names
}

func (g *Group) ThreatScanEnabled() bool {
	return g.settings.ThreatScan.EnableThreatScan
}

func (g *Group) WindowsDefenderScanEnabled() bool {
	return g.settings.ThreatScan.EnableWindowsDefenderScan
}

func (g *Group) AutoscaleEnabled() bool {
	return g.settings.AdvancedOptions.EnableAutoScale
}

func (g *Group) PowerOffAfterRecovery() bool {
	return g.settings.AdvancedOptions.PowerOffVMAfterRecovery
}

// NewTargetName is the name given to a target created on demand for this group.
func (g *Group) NewTargetName() string {
	return g.name + newTargetSuffix
}

func (g *Group) NewHypervisorName() string {
	return g.NewTargetName() + newHypervisorSuffix
}

// ValidateNewRecoveryTargetExists reports whether the group recovers into the
// target created on demand for it.
func (g *Group) ValidateNewRecoveryTargetExists() bool {
	return g.TargetName() == g.NewTargetName()
}

// ValidateNewHypervisorExists reports whether the group's target uses the
// hypervisor created on demand for it.
func (g *Group) ValidateNewHypervisorExists() bool {
	if g.target == nil {
		return false
	}
	return g.target.DestinationHypervisor() == g.NewHypervisorName()
}

// EligibleEntityIDs are the entities a recover-all submission would include:
// not NOT_READY, not IN_PROGRESS and, for Defender scans, Windows only.
func (g *Group) EligibleEntityIDs(windowsDefender bool) []int64 {
	ids := make([]int64, 0, len(g.records))
	for _, rec := range g.records {
		var code int64
		if rec.RecoveryStatus != nil {
			code = rec.RecoveryStatus.Int64()
		}
		if s := status.RecoveryStatus(code); s == status.StatusNotReady || s == status.StatusInProgress {
			continue
		}
		if windowsDefender && (rec.OSType == nil || rec.OSType.Int64() != 0) {
			continue
		}
		ids = append(ids, rec.ID.Int64())
	}
	return ids
}

// RecoverAll submits one recovery job for every eligible entity. When nothing
// is eligible it fails with InvalidArgument without a request, rather than
// submitting an empty entity list the server would accept.
func (g *Group) RecoverAll(ctx context.Context, opts RecoverOptions) (int64, error) {
	ids := g.EligibleEntityIDs(opts.WindowsDefenderScan)
	if len(ids) == 0 {
		return 0, session.InvalidArgument("recover recovery group", "no entity of recovery group %s is eligible for recovery", g.name)
	}
	return g.RecoverEntities(ctx, ids, opts)
}

type idRef struct {
	ID int64 `json:"id"`
}

func idRefs(ids []int64) []idRef {
	refs := make([]idRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, idRef{ID: id})
	}
	return refs
}

type recoverRequest struct {
	RecoveryGroup idRef   `json:"recoveryGroup"`
	Entities      []idRef `json:"entities"`
	ThreatScan    struct {
		EnableThreatScan          bool `json:"enableThreatScan"`
		EnableWindowsDefenderScan bool `json:"enableWindowsDefenderScan"`
	} `json:"threatScan"`
}

type cleanupRequest struct {
	RecoveryGroup idRef   `json:"recoveryGroup"`
	Entities      []idRef `json:"entities"`
}

// RecoverEntities submits one recovery job for the given entities.
func (g *Group) RecoverEntities(ctx context.Context, ids []int64, opts RecoverOptions) (int64, error) {
	op := "recover entities"
	if len(ids) == 0 {
		return 0, session.InvalidArgument(op, "at least one entity id is required")
	}

	req := recoverRequest{
		RecoveryGroup: idRef{ID: g.id},
		Entities:      idRefs(ids),
	}
	req.ThreatScan.EnableThreatScan = g.ThreatScanEnabled() || opts.ThreatScan
	req.ThreatScan.EnableWindowsDefenderScan = g.WindowsDefenderScanEnabled() || opts.WindowsDefenderScan

	jobID, err := g.submit(ctx, op, session.Path(g.deps.Backend.Endpoints.RecoverGroup, g.id), req)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"group_name":    g.name,
		"job_id":        jobID,
		"entities":      len(ids),
		"threat_scan":   req.ThreatScan.EnableThreatScan,
		"defender_scan": req.ThreatScan.EnableWindowsDefenderScan,
	}).Info("🚀 Recovery job submitted")
	return jobID, nil
}

// CleanupRecoveredEntities submits one cleanup job for every entity of the group.
func (g *Group) CleanupRecoveredEntities(ctx context.Context) (int64, error) {
	op := "cleanup recovery group"
	ids := g.EntityIDs()
	if len(ids) == 0 {
		return 0, session.InvalidArgument(op, "recovery group %s has no entities", g.name)
	}

	jobID, err := g.submit(ctx, op, g.deps.Backend.Endpoints.CleanupGroup, cleanupRequest{
		RecoveryGroup: idRef{ID: g.id},
		Entities:      idRefs(ids),
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"group_name": g.name,
		"job_id":     jobID,
		"entities":   len(ids),
	}).Info("🧹 Cleanup job submitted")
	return jobID, nil
}

func (g *Group) submit(ctx context.Context, op, path string, payload any) (int64, error) {
	resp, err := g.deps.Backend.Do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return 0, err
	}
	var body struct {
		JobID *session.FlexInt `json:"jobId"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return 0, err
	}
	if body.JobID == nil {
		return 0, session.MissingKey(op, "jobId")
	}
	return body.JobID.Int64(), nil
}

// ThreatsCount reads the number of threats found across the group.
func (g *Group) ThreatsCount(ctx context.Context) (int64, error) {
	op := "get threats count"
	resp, err := g.deps.Backend.Do(ctx, http.MethodGet, session.Path(g.deps.Backend.Endpoints.GroupThreatsCount, g.id), nil)
	if err != nil {
		return 0, err
	}
	var body struct {
		KPI []struct {
			ThreatCount *session.FlexInt `json:"threatCount"`
		} `json:"KPI"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return 0, err
	}
	if len(body.KPI) == 0 || body.KPI[0].ThreatCount == nil {
		return 0, session.MissingKey(op, "KPI[0].threatCount")
	}
	return body.KPI[0].ThreatCount.Int64(), nil
}

// EntityStatus maps entity names to their listed status codes. Entities
// without a name are skipped. No request is made.
func (g *Group) EntityStatus() map[string]EntityState {
	out := make(map[string]EntityState, len(g.records))
	for _, rec := range g.records {
		if rec.Name == nil {
			continue
		}
		out[*rec.Name] = EntityState{
			RecoveryStatus:   optionalInt(rec.RecoveryStatus),
			NotReadyCategory: optionalInt(rec.RecoveryStatusNotReadyCategory),
		}
	}
	return out
}

func optionalInt(v *session.FlexInt) *int64 {
	if v == nil {
		return nil
	}
	n := v.Int64()
	return &n
}

func (g *Group) azureSetting(op string, path ...string) (string, error) {
	if len(g.raw) == 0 {
		return "", session.MissingKey(op, "entities[0]")
	}
	full := append([]string{"recoveryConfiguration", "configuration", "azure"}, path...)
	return lookupString(op, g.raw[0], full...)
}

// SecurityGroup is the Azure security group id overridden on the first entity.
func (g *Group) SecurityGroup() (string, error) {
	return g.azureSetting("get security group", "overrideReplicationOptions", "securityGroup", "id")
}

func (g *Group) VirtualNetwork() (string, error) {
	return g.azureSetting("get virtual network", "overrideReplicationOptions", "virtualNetwork", "networkName")
}

func (g *Group) ResourceGroup() (string, error) {
	return g.azureSetting("get resource group", "resourceGroup")
}

func (g *Group) StorageAccount() (string, error) {
	return g.azureSetting("get storage account", "storageAccount")
}

func (g *Group) requireTarget(op string) (*target.Target, error) {
	if g.target == nil {
		return nil, session.InvalidArgument(op, "recovery group %s has no target", g.name)
	}
	return g.target, nil
}

// DestinationClient resolves the destination hypervisor client. Uncached.
func (g *Group) DestinationClient(ctx context.Context) (catalog.Client, error) {
	tgt, err := g.requireTarget("resolve destination client")
	if err != nil {
		return catalog.Client{}, err
	}
	return g.deps.Catalog.Client(ctx, tgt.DestinationHypervisor())
}

// DestinationAgent resolves the agent protecting the workload kind on the
// destination hypervisor.
func (g *Group) DestinationAgent(ctx context.Context, workload status.Workload) (catalog.Agent, error) {
	op := "resolve destination agent"
	agentName, ok := workload.AgentName()
	if !ok {
		return catalog.Agent{}, session.InvalidArgument(op, "unknown workload %s", workload)
	}
	client, err := g.DestinationClient(ctx)
	if err != nil {
		return catalog.Agent{}, err
	}
	return g.deps.Catalog.Agent(ctx, client, agentName)
}

// DestinationInstance resolves the destination instance for the target vendor.
func (g *Group) DestinationInstance(ctx context.Context, workload status.Workload) (catalog.Instance, error) {
	op := "resolve destination instance"
	tgt, err := g.requireTarget(op)
	if err != nil {
		return catalog.Instance{}, err
	}
	instanceName, ok := tgt.InstanceName()
	if !ok {
		return catalog.Instance{}, session.InvalidArgument(op, "no destination instance for vendor %s", tgt.Vendor())
	}
	agent, err := g.DestinationAgent(ctx, workload)
	if err != nil {
		return catalog.Instance{}, err
	}
	return g.deps.Catalog.Instance(ctx, agent, instanceName)
}

// GroupSummary is a serializable snapshot of the group.
type GroupSummary struct {
	ID                    int64                  `json:"id"`
	Name                  string                 `json:"name"`
	TargetName            string                 `json:"target_name"`
	ThreatScan            bool                   `json:"threat_scan"`
	WindowsDefenderScan   bool                   `json:"windows_defender_scan"`
	Autoscale             bool                   `json:"autoscale"`
	PowerOffAfterRecovery bool                   `json:"power_off_after_recovery"`
	EntityIDs             []int64                `json:"entity_ids"`
	EntityStatus          map[string]EntityState `json:"entity_status"`
}

func (g *Group) Summary() GroupSummary {
	return GroupSummary{
		ID:                    g.id,
		Name:                  g.name,
		TargetName:            g.TargetName(),
		ThreatScan:            g.ThreatScanEnabled(),
		WindowsDefenderScan:   g.WindowsDefenderScanEnabled(),
		Autoscale:             g.AutoscaleEnabled(),
		PowerOffAfterRecovery: g.PowerOffAfterRecovery(),
		EntityIDs:             g.EntityIDs(),
		EntityStatus:          g.EntityStatus(),
	}
}

// lookupString walks nested objects and renders the leaf as a string.
func lookupString(op string, doc map[string]any, path ...string) (string, error) {
	var cur any = doc
	for i, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", session.MissingKey(op, strings.Join(path[:i+1], "."))
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return "", session.MissingKey(op, strings.Join(path[:i+1], "."))
		}
	}
	switch v := cur.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	default:
		return fmt.Sprint(v), nil
	}
}
