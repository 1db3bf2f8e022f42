package target

import "fmt"

// PolicyType is the integer vendor code the backend keys destination behavior off.
type PolicyType int

const (
	PolicyUnknown   PolicyType = -1
	PolicyAmazon    PolicyType = 1
	PolicyMicrosoft PolicyType = 2
	PolicyAzure     PolicyType = 7
	PolicyVMware    PolicyType = 13
)

var vendorPolicies = map[string]PolicyType{
	"AMAZON":                 PolicyAmazon,
	"MICROSOFT":              PolicyMicrosoft,
	"AZURE_V2":               PolicyAzure,
	"VMW_BACKUP_LABTEMPLATE": PolicyVMware,
	"VMW_LIVEMOUNT":          PolicyVMware,
}

// ClassifyVendor maps a free-form vendor string to its policy type.
// Unrecognized vendors map to PolicyUnknown.
func ClassifyVendor(vendor string) PolicyType {
	if p, ok := vendorPolicies[vendor]; ok {
		return p
	}
	return PolicyUnknown
}

func (p PolicyType) String() string {
	switch p {
	case PolicyAmazon:
		return "AMAZON"
	case PolicyMicrosoft:
		return "MICROSOFT"
	case PolicyAzure:
		return "AZURE_V2"
	case PolicyVMware:
		return "VMWARE"
	case PolicyUnknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(p))
}

// ConfigurationKey is the key under an entity's recovery configuration that
// holds this vendor's settings.
func (p PolicyType) ConfigurationKey() (string, bool) {
	switch p {
	case PolicyAzure:
		return "azure", true
	case PolicyAmazon:
		return "amazon", true
	}
	return "", false
}

var instanceNames = map[string]string{
	"AZURE_V2": "Azure Resource Manager",
	"AMAZON":   "Amazon Web Services",
}

// InstanceName is the catalog instance name of the hypervisor for vendor.
func InstanceName(vendor string) (string, bool) {
	name, ok := instanceNames[vendor]
	return name, ok
}
