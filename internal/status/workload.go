package status

import "fmt"

// Workload is the kind of protected source an entity represents.
type Workload int

const (
	WorkloadGeneric       Workload = 0
	WorkloadO365          Workload = 1
	WorkloadSalesforce    Workload = 2
	WorkloadExchange      Workload = 3
	WorkloadSharePoint    Workload = 4
	WorkloadOneDrive      Workload = 5
	WorkloadTeams         Workload = 6
	WorkloadDynamics365   Workload = 7
	WorkloadVirtualServer Workload = 8
	WorkloadFileSystem    Workload = 9
)

type workloadInfo struct {
	name  string
	agent string
}

var workloads = map[Workload]workloadInfo{
	WorkloadGeneric:       {name: "GENERIC", agent: "Generic"},
	WorkloadO365:          {name: "O365", agent: "Office 365"},
	WorkloadSalesforce:    {name: "SALESFORCE", agent: "Salesforce"},
	WorkloadExchange:      {name: "EXCHANGE", agent: "Exchange Mailbox"},
	WorkloadSharePoint:    {name: "SHAREPOINT", agent: "SharePoint Server"},
	WorkloadOneDrive:      {name: "ONEDRIVE", agent: "Cloud Apps"},
	WorkloadTeams:         {name: "TEAMS", agent: "Cloud Apps"},
	WorkloadDynamics365:   {name: "DYNAMICS_365", agent: "Cloud Apps"},
	WorkloadVirtualServer: {name: "VIRTUAL_SERVER", agent: "Virtual Server"},
	WorkloadFileSystem:    {name: "FILE_SYSTEM", agent: "File System"},
}

func ParseWorkload(code int64) (Workload, error) {
	w := Workload(code)
	if _, ok := workloads[w]; !ok || int64(w) != code {
		return WorkloadGeneric, &CodeError{Kind: "workload", Code: code}
	}
	return w, nil
}

func (w Workload) String() string {
	if info, ok := workloads[w]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(w))
}

// AgentName is the catalog agent that protects this workload kind.
func (w Workload) AgentName() (string, bool) {
	info, ok := workloads[w]
	return info.agent, ok
}
