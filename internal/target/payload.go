package target

import (
	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

const (
	defaultVendor              = "AZURE_V2"
	AccessNodeTypeClient       = 3
	AccessNodeTypeClientGroup  = 28
	defaultSubscriptionID      = "<subscription_id>"
	defaultPlaceholderNodeName = "string"
)

// Spec describes the target to use or create. A positive ID selects an existing
// target. Otherwise a new target is created, on Hypervisor if set, or on a
// hypervisor built from Credentials.
type Spec struct {
	ID             int64
	Name           string
	Vendor         string
	Hypervisor     *session.Ref
	Credentials    *session.Ref
	SubscriptionID string
}

// AccessNodeSpec selects an existing access node (type 3) or access node group (type 28).
type AccessNodeSpec struct {
	ID   int64
	Name string
	Type int
}

// Region is a destination region as the server lists it.
type Region struct {
	GUID string `json:"guid,omitempty"`
	Name string `json:"name,omitempty"`
}

type CreateRequest struct {
	Entity  *session.Ref  `json:"entity,omitempty"`
	Options CreateOptions `json:"options"`
}

type CreateOptions struct {
	Region     Region             `json:"region"`
	AccessNode AccessNodeRef      `json:"accessNode"`
	Vendor     string             `json:"vendor,omitempty"`
	Hypervisor *HypervisorOptions `json:"hypervisor,omitempty"`
}

type AccessNodeRef struct {
	ID   *int64 `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Type *int   `json:"type,omitempty"`
}

type HypervisorOptions struct {
	Entity       *session.Ref            `json:"entity,omitempty"`
	OptionsAzure *AzureHypervisorOptions `json:"optionsAzure,omitempty"`
}

type AzureHypervisorOptions struct {
	Credentials              session.Ref `json:"credentials"`
	SkipCredentialValidation bool        `json:"skipCredentialValidation"`
	SubscriptionID           string      `json:"subscriptionId"`
	UseManagedIdentity       bool        `json:"useManagedIdentity"`
}

// BuildCreateRequest assembles the create-runbook-target payload.
func BuildCreateRequest(spec Spec, region *Region, node *AccessNodeSpec) (*CreateRequest, error) {
	if spec.Name == "" {
		return nil, session.InvalidArgument("build target payload", "missing or invalid target name")
	}

	req := &CreateRequest{}
	if region != nil {
		req.Options.Region = *region
	}

	if node != nil {
		id := node.ID
		nodeType := node.Type
		if nodeType == 0 {
			nodeType = AccessNodeTypeClient
		}
		name := node.Name
		if name == "" {
			name = defaultPlaceholderNodeName
		}
		req.Options.AccessNode = AccessNodeRef{ID: &id, Name: name, Type: &nodeType}
	}

	if spec.ID > 0 {
		req.Entity = &session.Ref{ID: session.FlexInt(spec.ID), Name: spec.Name}
		return req, nil
	}

	req.Options.Vendor = spec.Vendor
	if req.Options.Vendor == "" {
		req.Options.Vendor = defaultVendor
	}

	switch {
	case spec.Hypervisor != nil:
		hv := *spec.Hypervisor
		req.Options.Hypervisor = &HypervisorOptions{Entity: &hv}
		zero := int64(0)
		groupType := AccessNodeTypeClientGroup
		req.Options.AccessNode.ID = &zero
		req.Options.AccessNode.Type = &groupType
	case spec.Credentials != nil:
		subscription := spec.SubscriptionID
		if subscription == "" {
			subscription = defaultSubscriptionID
		}
		req.Options.Hypervisor = &HypervisorOptions{
			OptionsAzure: &AzureHypervisorOptions{
				Credentials:    *spec.Credentials,
				SubscriptionID: subscription,
			},
		}
	}

	return req, nil
}
