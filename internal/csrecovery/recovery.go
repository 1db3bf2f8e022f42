// Package csrecovery drives CommServe recovery: reserving a cleanroom VM that
// stages an uploaded CommServe backupset, and managing that reservation.
package csrecovery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

const backupTimeLayout = "2006-01-02T15:04:05Z"

// reservation operations accepted by the request endpoint
const (
	operationExtend = 2
	operationClose  = 3
)

// errorCodeNoRequests is returned when no request exists for the CommServe.
const errorCodeNoRequests = 6

// RequestState is the lifecycle state of a recovery request.
type RequestState int

const (
	StateSubmitted  RequestState = 1
	StateCreatingVM RequestState = 2
	StateVMCreated  RequestState = 3
	StateStagingCS  RequestState = 4
	StateCSStaged   RequestState = 5
	StateFinished   RequestState = 6
	StateFailed     RequestState = 7
	StateKilled     RequestState = 8
)

var stateNames = map[RequestState]string{
	StateSubmitted:  "SUBMITTED",
	StateCreatingVM: "CREATING_VM",
	StateVMCreated:  "VM_CREATED",
	StateStagingCS:  "STAGING_CS",
	StateCSStaged:   "CS_STAGED",
	StateFinished:   "FINISHED",
	StateFailed:     "FAILED",
	StateKilled:     "KILLED",
}

func (s RequestState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
}

func (s RequestState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Backupset is one uploaded CommServe backup that a recovery can stage.
type Backupset struct {
	ID               int64     `json:"set_id"`
	Size             int64     `json:"size"`
	BackupTime       time.Time `json:"backup_time"`
	ManuallyRetained bool      `json:"manually_retained"`
	RetainedUntil    int64     `json:"retained_until,omitempty"`
}

// VMInfo describes the staged CommServe VM of a request.
type VMInfo struct {
	CommandCenterURL string `json:"commandcenter_url"`
	ExpirationTime   int64  `json:"vm_expiration_time"`
	Username         string `json:"username"`
	Password         string `json:"password"`
}

// Request is one active recovery request.
type Request struct {
	ID        int64        `json:"id"`
	Backupset string       `json:"backupset"`
	Requestor string       `json:"requestor"`
	Version   string       `json:"version"`
	StartTime int64        `json:"start_time"`
	EndTime   int64        `json:"end_time"`
	Status    RequestState `json:"status"`
	VM        *VMInfo      `json:"vm_info,omitempty"`
}

// License is the recovery license quota of the CommServe.
type License struct {
	Licensed       bool  `json:"license"`
	QuotaStart     int64 `json:"quota_start_date"`
	QuotaEnd       int64 `json:"quota_end_date"`
	UsedRecoveries int64 `json:"recoveries_count"`
	MaxRecoveries  int64 `json:"max_recoveries"`
}

// Retention is the manual retention quota of the CommServe.
type Retention struct {
	CleanupLockTime int64 `json:"cleanup_lock_time"`
	QuotaStart      int64 `json:"quota_start_date"`
	QuotaEnd        int64 `json:"quota_end_date"`
	ConsumedRetains int64 `json:"consumed_retains"`
	MaxRetains      int64 `json:"max_retains"`
}

// StartOptions tune a new recovery request.
type StartOptions struct {
	// AddressPrefixes limits which client addresses may reach the VM. Empty means "*".
	AddressPrefixes string
	// ForgetAddress stops the server from remembering the allowed addresses.
	ForgetAddress bool
}

// CommServeRecovery manages the recovery requests of one CommServe.
type CommServeRecovery struct {
	backend session.Backend
	guid    string

	license   License
	retention Retention
}

// New loads the license and retention details of the CommServe with guid.
func New(ctx context.Context, backend session.Backend, guid string) (*CommServeRecovery, error) {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return nil, session.InvalidArgument("commserve recovery", "commserve guid is required")
	}

	r := &CommServeRecovery{backend: backend, guid: guid}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh reloads the license and retention details.
func (r *CommServeRecovery) Refresh(ctx context.Context) error {
	license, err := r.LicenseDetails(ctx)
	if err != nil {
		return err
	}
	retention, err := r.RetentionDetails(ctx)
	if err != nil {
		return err
	}
	r.license = license
	r.retention = retention
	return nil
}

func (r *CommServeRecovery) GUID() string { return r.guid }

// IsLicensed reports the license flag as of the last refresh.
func (r *CommServeRecovery) IsLicensed() bool { return r.license.Licensed }

// CleanupLockTime is the retention lock as of the last refresh.
func (r *CommServeRecovery) CleanupLockTime() int64 { return r.retention.CleanupLockTime }

// flexBool accepts booleans and 0/1 numbers.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*b = true
		return nil
	case "false", "null":
		*b = false
		return nil
	}
	var n session.FlexInt
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	*b = n != 0
	return nil
}

// rawText renders a scalar that may arrive as a string or a number.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (r *CommServeRecovery) get(ctx context.Context, op, path string, v any) error {
	resp, err := r.backend.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return resp.Decode(op, v)
}

// LicenseDetails reads the recovery license quota.
func (r *CommServeRecovery) LicenseDetails(ctx context.Context) (License, error) {
	op := "get commserve recovery license"
	var body struct {
		License         *flexBool       `json:"license"`
		QuotaStartDate  session.FlexInt `json:"quotaStartDate"`
		QuotaEndDate    session.FlexInt `json:"quotaEndDate"`
		RecoveriesCount session.FlexInt `json:"recoveriesCount"`
		MaxRecoveries   session.FlexInt `json:"maxRecoveries"`
	}
	if err := r.get(ctx, op, session.Path(r.backend.Endpoints.CommServeRecoveryLicense, r.guid), &body); err != nil {
		return License{}, err
	}
	if body.License == nil {
		return License{}, session.MissingKey(op, "license")
	}
	return License{
		Licensed:       bool(*body.License),
		QuotaStart:     body.QuotaStartDate.Int64(),
		QuotaEnd:       body.QuotaEndDate.Int64(),
		UsedRecoveries: body.RecoveriesCount.Int64(),
		MaxRecoveries:  body.MaxRecoveries.Int64(),
	}, nil
}

// RetentionDetails reads the manual retention quota.
func (r *CommServeRecovery) RetentionDetails(ctx context.Context) (Retention, error) {
	op := "get commserve recovery retention"
	var body struct {
		CleanupLockTime session.FlexInt `json:"cleanup_lock_time"`
		QuotaStartDate  session.FlexInt `json:"quota_start_date"`
		QuotaEndDate    session.FlexInt `json:"quota_end_date"`
		ConsumedRetains session.FlexInt `json:"consumed_retains"`
		MaxRetains      session.FlexInt `json:"max_retains"`
	}
	if err := r.get(ctx, op, session.Path(r.backend.Endpoints.CommServeRecoveryRetention, r.guid), &body); err != nil {
		return Retention{}, err
	}
	return Retention{
		CleanupLockTime: body.CleanupLockTime.Int64(),
		QuotaStart:      body.QuotaStartDate.Int64(),
		QuotaEnd:        body.QuotaEndDate.Int64(),
		ConsumedRetains: body.ConsumedRetains.Int64(),
		MaxRetains:      body.MaxRetains.Int64(),
	}, nil
}

// Backupsets lists the uploaded backupsets by name.
func (r *CommServeRecovery) Backupsets(ctx context.Context) (map[string]Backupset, error) {
	op := "list commserve backupsets"
	var body struct {
		Companies []struct {
			Commcells []struct {
				Sets []struct {
					SetName         string          `json:"set_name"`
					SetID           session.FlexInt `json:"set_id"`
					TimeModified    string          `json:"time_modified"`
					CleanupLockTime session.FlexInt `json:"cleanup_lock_time"`
					Files           []struct {
						Size session.FlexInt `json:"size"`
					} `json:"files"`
				} `json:"sets"`
			} `json:"commcells"`
		} `json:"companies"`
	}
	if err := r.get(ctx, op, session.Path(r.backend.Endpoints.CommServeBackupsets, r.guid), &body); err != nil {
		return nil, err
	}
	if len(body.Companies) == 0 {
		return nil, session.NotFound(op, "no backupsets uploaded for commserve %s", r.guid)
	}
	if len(body.Companies[0].Commcells) == 0 {
		return nil, session.MissingKey(op, "companies[0].commcells")
	}

	out := make(map[string]Backupset)
	for _, set := range body.Companies[0].Commcells[0].Sets {
		var size int64
		for _, f := range set.Files {
			size += f.Size.Int64()
		}
		modified, err := time.Parse(backupTimeLayout, set.TimeModified)
		if err != nil {
			return nil, session.MalformedBody(op, err)
		}
		out[set.SetName] = Backupset{
			ID:               set.SetID.Int64(),
			Size:             size,
			BackupTime:       modified,
			ManuallyRetained: set.CleanupLockTime != 0,
			RetainedUntil:    set.CleanupLockTime.Int64(),
		}
	}
	return out, nil
}

type startRequest struct {
	CommcellGUID    string `json:"commcellGUID"`
	SetID           int64  `json:"setId"`
	SetName         string `json:"setName"`
	SetSize         int64  `json:"setSize"`
	AddressPrefixes string `json:"addressPrefixes"`
	RememberAddress bool   `json:"rememberAddress"`
}

// StartRecovery reserves a VM that stages the named backupset and returns the
// request id.
func (r *CommServeRecovery) StartRecovery(ctx context.Context, backupset string, opts StartOptions) (int64, error) {
	op := "start commserve recovery"
	sets, err := r.Backupsets(ctx)
	if err != nil {
		return 0, err
	}
	set, ok := sets[backupset]
	if !ok {
		return 0, session.NotFound(op, "no backupset exists with name: %s", backupset)
	}

	prefixes := opts.AddressPrefixes
	if prefixes == "" {
		prefixes = "*"
	}
	resp, err := r.backend.Do(ctx, http.MethodPost, r.backend.Endpoints.CommServeRecovery, startRequest{
		CommcellGUID:    r.guid,
		SetID:           set.ID,
		SetName:         backupset,
		SetSize:         set.Size,
		AddressPrefixes: prefixes,
		RememberAddress: !opts.ForgetAddress,
	})
	if err != nil {
		return 0, err
	}

	var body struct {
		Success      bool             `json:"success"`
		RequestID    *session.FlexInt `json:"requestId"`
		ErrorMessage string           `json:"errorMessage"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return 0, err
	}
	if !body.Success {
		return 0, session.ResponseError(op, "request creation was not successful: %s", body.ErrorMessage)
	}
	if body.RequestID == nil {
		return 0, session.MissingKey(op, "requestId")
	}

	log.WithFields(log.Fields{
		"commserve_guid": r.guid,
		"backupset":      backupset,
		"request_id":     body.RequestID.Int64(),
	}).Info("🚀 CommServe recovery requested")
	return body.RequestID.Int64(), nil
}

type reservationRequest struct {
	CSGUID    string `json:"csGuid"`
	RequestID int64  `json:"requestId"`
	Operation int    `json:"operation"`
}

func (r *CommServeRecovery) updateReservation(ctx context.Context, op string, requestID int64, operation int) error {
	resp, err := r.backend.Do(ctx, http.MethodPut, r.backend.Endpoints.CommServeRecovery, reservationRequest{
		CSGUID:    r.guid,
		RequestID: requestID,
		Operation: operation,
	})
	if err != nil {
		return err
	}
	var body struct {
		ErrorCode    *session.FlexInt `json:"errorCode"`
		ErrorMessage string           `json:"errorMessage"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return err
	}
	if body.ErrorCode == nil {
		return session.MissingKey(op, "errorCode")
	}
	if *body.ErrorCode != 0 {
		return session.ResponseError(op, "error code %d: %s", body.ErrorCode.Int64(), body.ErrorMessage)
	}
	return nil
}

// ExtendReservation extends the VM reservation of a request.
func (r *CommServeRecovery) ExtendReservation(ctx context.Context, requestID int64) error {
	if err := r.updateReservation(ctx, "extend commserve reservation", requestID, operationExtend); err != nil {
		return err
	}
	log.WithFields(log.Fields{"commserve_guid": r.guid, "request_id": requestID}).Info("⏳ CommServe reservation extended")
	return nil
}

// CloseReservation ends a request and releases its VM.
func (r *CommServeRecovery) CloseReservation(ctx context.Context, requestID int64) error {
	if err := r.updateReservation(ctx, "close commserve reservation", requestID, operationClose); err != nil {
		return err
	}
	log.WithFields(log.Fields{"commserve_guid": r.guid, "request_id": requestID}).Info("🔒 CommServe reservation closed")
	return nil
}

// ActiveRequests lists the active requests by id. VM details are only
// reported once the CommServe is staged.
func (r *CommServeRecovery) ActiveRequests(ctx context.Context) (map[int64]Request, error) {
	op := "list commserve recovery requests"
	var body struct {
		ErrorCode session.FlexInt `json:"errorCode"`
		Requests  []struct {
			ID        session.FlexInt `json:"id"`
			SetName   string          `json:"setName"`
			Requestor struct {
				FullName string `json:"fullName"`
			} `json:"requestor"`
			ServicePack json.RawMessage `json:"servicePack"`
			CreatedTime session.FlexInt `json:"createdTime"`
			Status      session.FlexInt `json:"status"`
			VMInfo      struct {
				IPAddress        string          `json:"ipAddress"`
				VMExpirationTime session.FlexInt `json:"vmExpirationTime"`
				Credentials      struct {
					Username string `json:"sUsername"`
					Password string `json:"sPassword"`
				} `json:"credentials"`
			} `json:"vmInfo"`
		} `json:"requests"`
	}
	if err := r.get(ctx, op, session.Path(r.backend.Endpoints.CommServeRecoveryRequests, r.guid), &body); err != nil {
		return nil, err
	}
	if body.ErrorCode == errorCodeNoRequests {
		return nil, session.NotFound(op, "no recovery requests for commserve %s", r.guid)
	}

	out := make(map[int64]Request, len(body.Requests))
	for _, req := range body.Requests {
		item := Request{
			ID:        req.ID.Int64(),
			Backupset: req.SetName,
			Requestor: req.Requestor.FullName,
			Version:   rawText(req.ServicePack),
			StartTime: req.CreatedTime.Int64(),
			EndTime:   req.VMInfo.VMExpirationTime.Int64(),
			Status:    RequestState(req.Status),
		}
		if item.Status == StateCSStaged {
			item.VM = &VMInfo{
				CommandCenterURL: "https://" + req.VMInfo.IPAddress + "/commandcenter",
				ExpirationTime:   req.VMInfo.VMExpirationTime.Int64(),
				Username:         req.VMInfo.Credentials.Username,
				Password:         req.VMInfo.Credentials.Password,
			}
		}
		out[item.ID] = item
	}
	return out, nil
}

// VMDetails returns the staged VM of an active request, or nil while the
// CommServe is not staged yet.
func (r *CommServeRecovery) VMDetails(ctx context.Context, requestID int64) (*VMInfo, error) {
	requests, err := r.ActiveRequests(ctx)
	if err != nil {
		return nil, err
	}
	req, ok := requests[requestID]
	if !ok {
		return nil, session.NotFound("get commserve vm details", "no active request with id %d", requestID)
	}
	return req.VM, nil
}
