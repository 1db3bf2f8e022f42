package target

// Config holds the vendor specific settings of a target. It is one of
// *AmazonConfig, *AzureConfig or *UnsupportedConfig, chosen on refresh.
type Config interface {
	Policy() PolicyType
}

// AmazonConfig is read from the legacy recovery target schema.
type AmazonConfig struct {
	Region           string `json:"region"`
	AvailabilityZone string `json:"availability_zone"`
	IAMRole          string `json:"iam_role"`
	EncryptionKey    string `json:"encryption_key"`
	InstanceType     string `json:"instance_type"`
	SecurityGroup    string `json:"security_group"`
	NetworkSubnet    string `json:"network_subnet"`
	VolumeType       string `json:"volume_type"`
	KeyPair          string `json:"key_pair"`
}

func (*AmazonConfig) Policy() PolicyType { return PolicyAmazon }

// AzureConfig is read from the runbook target schema.
type AzureConfig struct {
	Region             string `json:"region"`
	AvailabilityZone   string `json:"availability_zone"`
	StorageAccount     string `json:"storage_account"`
	ResourceGroup      string `json:"resource_group"`
	VMSize             string `json:"vm_size"`
	DiskType           string `json:"disk_type"`
	VirtualNetwork     string `json:"virtual_network"`
	SecurityGroup      string `json:"security_group"`
	CreatePublicIP     bool   `json:"create_public_ip"`
	RestoreAsManagedVM bool   `json:"restore_as_managed_vm"`
	TestVirtualNetwork string `json:"test_virtual_network"`
	TestVMSize         string `json:"test_vm_size"`
	UseManagedIdentity bool   `json:"use_managed_identity"`
	EncryptionKey      string `json:"encryption_key"`
}

func (*AzureConfig) Policy() PolicyType { return PolicyAzure }

// UnsupportedConfig stands in for vendors without vendor specific settings.
type UnsupportedConfig struct {
	PolicyType PolicyType `json:"policy_type"`
}

func (c *UnsupportedConfig) Policy() PolicyType { return c.PolicyType }
