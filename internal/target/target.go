// Package target resolves cleanroom recovery targets: the destination
// topology recovered workloads land in.
package target

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

const accessNodeAutomatic = "Automatic"

// AccessNode is either automatic selection or a fixed client or client group.
type AccessNode struct {
	Automatic bool   `json:"automatic"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	ID        int64  `json:"id,omitempty"`
}

// IsSet reports whether the target defines an access node at all.
func (a AccessNode) IsSet() bool {
	return a.Automatic || a.Type != ""
}

func (a AccessNode) String() string {
	switch {
	case a.Automatic:
		return accessNodeAutomatic
	case a.Type != "":
		return fmt.Sprintf("%s %s (%d)", a.Type, a.Name, a.ID)
	}
	return ""
}

// Target is the view of one recovery target as of its last refresh.
type Target struct {
	backend session.Backend

	id   int64
	name string

	applicationType       string
	vendor                string
	policy                PolicyType
	destinationHypervisor string
	accessNode            AccessNode
	accessNodeClientGroup string
	users                 []string
	userGroups            []string
	vmPrefix              string
	vmSuffix              string
	expirationTime        string
	config                Config
}

// New resolves a target by name. A zero id is looked up in the target catalog.
func New(ctx context.Context, backend session.Backend, name string, id int64) (*Target, error) {
	name = strings.ToLower(name)
	if id == 0 {
		if name == "" {
			return nil, session.InvalidArgument("target", "target name is required")
		}
		targets, err := NewTargets(ctx, backend)
		if err != nil {
			return nil, err
		}
		found, ok := targets.ID(name)
		if !ok {
			return nil, session.NotFound("target", "no target exists with name: %s", name)
		}
		id = found
	}

	t := &Target{
		backend: backend,
		id:      id,
		name:    name,
	}
	if err := t.Refresh(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

type namedValue struct {
	Name string `json:"name"`
}

type legacyTarget struct {
	Entity *struct {
		ApplicationType       string     `json:"applicationType"`
		DestinationHypervisor namedValue `json:"destinationHypervisor"`
		PolicyType            string     `json:"policyType"`
	} `json:"entity"`
	VMDisplayName struct {
		Prefix string `json:"prefix"`
		Suffix string `json:"suffix"`
	} `json:"vmDisplayName"`
	AccessNode struct {
		Type string          `json:"type"`
		Name string          `json:"name"`
		ID   session.FlexInt `json:"id"`
	} `json:"accessNode"`
	ProxyClientGroupEntity struct {
		ClientGroupName string `json:"clientGroupName"`
	} `json:"proxyClientGroupEntity"`
	SecurityOptions struct {
		Users []struct {
			UserName string `json:"userName"`
		} `json:"users"`
		UserGroups []struct {
			UserGroupName string `json:"userGroupName"`
		} `json:"userGroups"`
		SecurityGroup []namedValue `json:"securityGroup"`
	} `json:"securityOptions"`
	CloudDestinationOptions struct {
		Region           namedValue `json:"region"`
		AvailabilityZone string     `json:"availabilityZone"`
		EncryptionKey    struct {
			KeyName string `json:"keyName"`
		} `json:"encryptionKey"`
		KeyPair string `json:"keyPair"`
	} `json:"cloudDestinationOptions"`
	AmazonPolicy struct {
		IAMRole         namedValue `json:"iamRole"`
		VMInstanceTypes []struct {
			VMInstanceTypeName string `json:"vmInstanceTypeName"`
		} `json:"vmInstanceTypes"`
		VolumeType namedValue `json:"volumeType"`
	} `json:"amazonPolicy"`
	NetworkOptions struct {
		Network string `json:"network"`
	} `json:"networkOptions"`
	LiveMountOptions struct {
		ExpirationTime struct {
			MinutesRetainUntil session.FlexInt `json:"minutesRetainUntil"`
			DaysRetainUntil    session.FlexInt `json:"daysRetainUntil"`
		} `json:"expirationTime"`
	} `json:"liveMountOptions"`
}

type runbookTarget struct {
	General *struct {
		Name            string `json:"name"`
		Vendor          string `json:"vendor"`
		ApplicationType string `json:"applicationType"`
	} `json:"general"`
	Recovery struct {
		Region             namedValue `json:"region"`
		AvailabilityZone   string     `json:"availabilityZone"`
		VMSize             string     `json:"vmSize"`
		TestVMSize         string     `json:"testVmSize"`
		DiskType           string     `json:"diskType"`
		CreatePublicIP     bool       `json:"createPublicIP"`
		RestoreAsManagedVM bool       `json:"restoreAsManagedVM"`
	} `json:"recovery"`
	Infrastructure struct {
		StorageAccount     string     `json:"storageAccount"`
		ResourceGroup      string     `json:"resourceGroup"`
		VirtualNetwork     namedValue `json:"virtualNetwork"`
		SecurityGroup      namedValue `json:"securityGroup"`
		TestVirtualNetwork namedValue `json:"testVirtualNetwork"`
	} `json:"infrastructure"`
	Advanced struct {
		UseManagedIdentity bool       `json:"useManagedIdentity"`
		EncryptionKey      namedValue `json:"encryptionKey"`
	} `json:"advanced"`
}

// Refresh reads the legacy and the runbook target schema and re-derives every field.
func (t *Target) Refresh(ctx context.Context) error {
	var legacy legacyTarget
	if err := t.get(ctx, "refresh target", session.Path(t.backend.Endpoints.RecoveryTarget, t.id), &legacy); err != nil {
		return err
	}
	if legacy.Entity == nil {
		return session.MissingKey("refresh target", "entity")
	}

	var current runbookTarget
	if err := t.get(ctx, "refresh target", session.Path(t.backend.Endpoints.RunbookTarget, t.id), &current); err != nil {
		return err
	}
	if current.General == nil {
		return session.MissingKey("refresh target", "general")
	}

	t.applicationType = legacy.Entity.ApplicationType
	if t.applicationType == "" {
		t.applicationType = current.General.ApplicationType
	}
	t.destinationHypervisor = legacy.Entity.DestinationHypervisor.Name
	t.vmPrefix = legacy.VMDisplayName.Prefix
	t.vmSuffix = legacy.VMDisplayName.Suffix
	t.accessNode = decodeAccessNode(legacy.AccessNode.Type, legacy.AccessNode.Name, legacy.AccessNode.ID.Int64())
	t.accessNodeClientGroup = legacy.ProxyClientGroupEntity.ClientGroupName

	t.users = t.users[:0]
	for _, u := range legacy.SecurityOptions.Users {
		t.users = append(t.users, u.UserName)
	}
	t.userGroups = t.userGroups[:0]
	for _, g := range legacy.SecurityOptions.UserGroups {
		t.userGroups = append(t.userGroups, g.UserGroupName)
	}

	t.expirationTime = ""
	if minutes := legacy.LiveMountOptions.ExpirationTime.MinutesRetainUntil; minutes != 0 {
		t.expirationTime = fmt.Sprintf("%d hours", minutes)
	} else if days := legacy.LiveMountOptions.ExpirationTime.DaysRetainUntil; days != 0 {
		t.expirationTime = fmt.Sprintf("%d days", days)
	}

	t.vendor = current.General.Vendor
	if t.vendor == "" {
		t.vendor = legacy.Entity.PolicyType
	}
	t.policy = ClassifyVendor(t.vendor)

	switch t.policy {
	case PolicyAmazon:
		t.config = amazonConfig(&legacy)
	case PolicyAzure:
		t.config = azureConfig(&current)
	default:
		t.config = &UnsupportedConfig{PolicyType: t.policy}
	}

	log.WithFields(log.Fields{
		"target_id":   t.id,
		"target_name": t.name,
		"vendor":      t.vendor,
		"policy_type": int(t.policy),
	}).Debug("Refreshed recovery target")

	return nil
}

func (t *Target) get(ctx context.Context, op, path string, out any) error {
	resp, err := t.backend.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return resp.Decode(op, out)
}

func decodeAccessNode(nodeType, name string, id int64) AccessNode {
	switch nodeType {
	case accessNodeAutomatic:
		return AccessNode{Automatic: true}
	case "Client", "Group":
		return AccessNode{Type: nodeType, Name: name, ID: id}
	}
	return AccessNode{}
}

func amazonConfig(legacy *legacyTarget) *AmazonConfig {
	c := &AmazonConfig{
		Region:           legacy.CloudDestinationOptions.Region.Name,
		AvailabilityZone: legacy.CloudDestinationOptions.AvailabilityZone,
		IAMRole:          legacy.AmazonPolicy.IAMRole.Name,
		EncryptionKey:    legacy.CloudDestinationOptions.EncryptionKey.KeyName,
		NetworkSubnet:    legacy.NetworkOptions.Network,
		VolumeType:       legacy.AmazonPolicy.VolumeType.Name,
		KeyPair:          legacy.CloudDestinationOptions.KeyPair,
	}
	if len(legacy.AmazonPolicy.VMInstanceTypes) > 0 {
		c.InstanceType = legacy.AmazonPolicy.VMInstanceTypes[0].VMInstanceTypeName
	}
	if len(legacy.SecurityOptions.SecurityGroup) > 0 {
		c.SecurityGroup = legacy.SecurityOptions.SecurityGroup[0].Name
	}
	return c
}

func azureConfig(current *runbookTarget) *AzureConfig {
	return &AzureConfig{
		Region:             current.Recovery.Region.Name,
		AvailabilityZone:   current.Recovery.AvailabilityZone,
		StorageAccount:     current.Infrastructure.StorageAccount,
		ResourceGroup:      current.Infrastructure.ResourceGroup,
		VMSize:             current.Recovery.VMSize,
		DiskType:           current.Recovery.DiskType,
		VirtualNetwork:     current.Infrastructure.VirtualNetwork.Name,
		SecurityGroup:      current.Infrastructure.SecurityGroup.Name,
		CreatePublicIP:     current.Recovery.CreatePublicIP,
		RestoreAsManagedVM: current.Recovery.RestoreAsManagedVM,
		TestVirtualNetwork: current.Infrastructure.TestVirtualNetwork.Name,
		TestVMSize:         current.Recovery.TestVMSize,
		UseManagedIdentity: current.Advanced.UseManagedIdentity,
		EncryptionKey:      current.Advanced.EncryptionKey.Name,
	}
}

// Delete removes the target on the server and returns its success flag.
func (t *Target) Delete(ctx context.Context) (bool, error) {
	op := "delete target"
	resp, err := t.backend.Do(ctx, http.MethodDelete, session.Path(t.backend.Endpoints.RecoveryTarget, t.id), nil)
	if err != nil {
		return false, err
	}
	ok, err := session.DeleteResult(op, resp)
	if err != nil {
		return false, err
	}

	log.WithFields(log.Fields{
		"target_id":   t.id,
		"target_name": t.name,
	}).Info("🗑️ Recovery target deleted")
	return ok, nil
}

func (t *Target) ID() int64                     { return t.id }
func (t *Target) Name() string                  { return t.name }
func (t *Target) ApplicationType() string       { return t.applicationType }
func (t *Target) Vendor() string                { return t.vendor }
func (t *Target) PolicyType() PolicyType        { return t.policy }
func (t *Target) DestinationHypervisor() string { return t.destinationHypervisor }
func (t *Target) AccessNode() AccessNode        { return t.accessNode }
func (t *Target) AccessNodeClientGroup() string { return t.accessNodeClientGroup }
func (t *Target) VMPrefix() string              { return t.vmPrefix }
func (t *Target) VMSuffix() string              { return t.vmSuffix }

// ExpirationTime is the retention of test VMs, e.g. "4 hours" or "3 days".
func (t *Target) ExpirationTime() string { return t.expirationTime }

// SecurityUserNames are the users owning the hypervisor and recovered VMs.
func (t *Target) SecurityUserNames() []string {
	return append([]string(nil), t.users...)
}

func (t *Target) SecurityUserGroups() []string {
	return append([]string(nil), t.userGroups...)
}

// Config returns the vendor settings variant selected on the last refresh.
func (t *Target) Config() Config { return t.config }

func (t *Target) Amazon() (*AmazonConfig, bool) {
	c, ok := t.config.(*AmazonConfig)
	return c, ok
}

func (t *Target) Azure() (*AzureConfig, bool) {
	c, ok := t.config.(*AzureConfig)
	return c, ok
}

// InstanceName is the catalog instance name of the destination hypervisor.
func (t *Target) InstanceName() (string, bool) {
	return InstanceName(t.vendor)
}

// Summary is a serializable snapshot of the target.
type Summary struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	ApplicationType       string     `json:"application_type"`
	Vendor                string     `json:"vendor"`
	PolicyType            int        `json:"policy_type"`
	DestinationHypervisor string     `json:"destination_hypervisor"`
	AccessNode            AccessNode `json:"access_node"`
	AccessNodeClientGroup string     `json:"access_node_client_group,omitempty"`
	SecurityUsers         []string   `json:"security_users,omitempty"`
	SecurityUserGroups    []string   `json:"security_user_groups,omitempty"`
	VMPrefix              string     `json:"vm_prefix,omitempty"`
	VMSuffix              string     `json:"vm_suffix,omitempty"`
	ExpirationTime        string     `json:"expiration_time,omitempty"`
	Config                Config     `json:"config"`
}

func (t *Target) Summary() Summary {
	return Summary{
		ID:                    t.id,
		Name:                  t.name,
		ApplicationType:       t.applicationType,
		Vendor:                t.vendor,
		PolicyType:            int(t.policy),
		DestinationHypervisor: t.destinationHypervisor,
		AccessNode:            t.accessNode,
		AccessNodeClientGroup: t.accessNodeClientGroup,
		SecurityUsers:         t.SecurityUserNames(),
		SecurityUserGroups:    t.SecurityUserGroups(),
		VMPrefix:              t.vmPrefix,
		VMSuffix:              t.vmSuffix,
		ExpirationTime:        t.expirationTime,
		Config:                t.config,
	}
}
