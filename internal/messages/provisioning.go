package messages

import "github.com/gaspardpetit/csms/internal/ocpp"

type BootReason string

const (
	BootReasonApplicationReset BootReason = "ApplicationReset"
	BootReasonFirmwareUpdate   BootReason = "FirmwareUpdate"
	BootReasonLocalReset       BootReason = "LocalReset"
	BootReasonPowerUp          BootReason = "PowerUp"
	BootReasonRemoteReset      BootReason = "RemoteReset"
	BootReasonScheduledReset   BootReason = "ScheduledReset"
	BootReasonTriggered        BootReason = "Triggered"
	BootReasonUnknown          BootReason = "Unknown"
	BootReasonWatchdog         BootReason = "Watchdog"
)

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type Modem struct {
	ICCID      string           `json:"iccid,omitempty" validate:"max=20"`
	IMSI       string           `json:"imsi,omitempty" validate:"max=20"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type ChargingStation struct {
	SerialNumber    string           `json:"serialNumber,omitempty" validate:"max=25"`
	Model           string           `json:"model" validate:"required,max=20"`
	Modem           *Modem           `json:"modem,omitempty"`
	VendorName      string           `json:"vendorName" validate:"required,max=50"`
	FirmwareVersion string           `json:"firmwareVersion,omitempty" validate:"max=50"`
	CustomData      *ocpp.CustomData `json:"customData,omitempty"`
}

type BootNotificationRequest struct {
	ChargingStation ChargingStation `json:"chargingStation"`
	Reason          BootReason      `json:"reason" validate:"required,oneof=ApplicationReset FirmwareUpdate LocalReset PowerUp RemoteReset ScheduledReset Triggered Unknown Watchdog"`
	ocpp.Extensions
}

type BootNotificationResponse struct {
	CurrentTime *ocpp.DateTime     `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval"`
	Status      RegistrationStatus `json:"status" validate:"required,oneof=Accepted Pending Rejected"`
	StatusInfo  *StatusInfo        `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type HeartbeatRequest struct {
	ocpp.Extensions
}

type HeartbeatResponse struct {
	CurrentTime *ocpp.DateTime `json:"currentTime" validate:"required"`
	ocpp.Extensions
}

type ReportBase string

const (
	ReportBaseConfigurationInventory ReportBase = "ConfigurationInventory"
	ReportBaseFullInventory          ReportBase = "FullInventory"
	ReportBaseSummaryInventory       ReportBase = "SummaryInventory"
)

type GetBaseReportRequest struct {
	RequestID  int        `json:"requestId"`
	ReportBase ReportBase `json:"reportBase" validate:"required,oneof=ConfigurationInventory FullInventory SummaryInventory"`
	ocpp.Extensions
}

type GetBaseReportResponse struct {
	Status     string      `json:"status" validate:"required,oneof=Accepted Rejected NotSupported EmptyResultSet"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type VariableAttribute struct {
	Type       string           `json:"type,omitempty" validate:"omitempty,oneof=Actual Target MinSet MaxSet"`
	Value      string           `json:"value,omitempty" validate:"max=2500"`
	Mutability string           `json:"mutability,omitempty" validate:"omitempty,oneof=ReadOnly WriteOnly ReadWrite"`
	Persistent bool             `json:"persistent,omitempty"`
	Constant   bool             `json:"constant,omitempty"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type VariableCharacteristics struct {
	Unit               string           `json:"unit,omitempty" validate:"max=16"`
	DataType           string           `json:"dataType" validate:"required,oneof=string decimal integer dateTime boolean OptionList SequenceList MemberList"`
	MinLimit           *float64         `json:"minLimit,omitempty"`
	MaxLimit           *float64         `json:"maxLimit,omitempty"`
	ValuesList         string           `json:"valuesList,omitempty" validate:"max=1000"`
	SupportsMonitoring bool             `json:"supportsMonitoring"`
	CustomData         *ocpp.CustomData `json:"customData,omitempty"`
}

type ReportData struct {
	Component               Component                `json:"component"`
	Variable                Variable                 `json:"variable"`
	VariableAttribute       []VariableAttribute      `json:"variableAttribute" validate:"required,min=1,max=4,dive"`
	VariableCharacteristics *VariableCharacteristics `json:"variableCharacteristics,omitempty"`
	CustomData              *ocpp.CustomData         `json:"customData,omitempty"`
}

type NotifyReportRequest struct {
	RequestID   int            `json:"requestId"`
	GeneratedAt *ocpp.DateTime `json:"generatedAt" validate:"required"`
	Tbc         bool           `json:"tbc,omitempty"`
	SeqNo       int            `json:"seqNo" validate:"gte=0"`
	ReportData  []ReportData   `json:"reportData,omitempty" validate:"omitempty,dive"`
	ocpp.Extensions
}

type NotifyReportResponse struct {
	ocpp.Extensions
}

type GetVariableData struct {
	AttributeType string           `json:"attributeType,omitempty" validate:"omitempty,oneof=Actual Target MinSet MaxSet"`
	Component     Component        `json:"component"`
	Variable      Variable         `json:"variable"`
	CustomData    *ocpp.CustomData `json:"customData,omitempty"`
}

type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData" validate:"required,min=1,dive"`
	ocpp.Extensions
}

type GetVariableResult struct {
	AttributeStatus     string           `json:"attributeStatus" validate:"required,oneof=Accepted Rejected UnknownComponent UnknownVariable NotSupportedAttributeType"`
	AttributeStatusInfo *StatusInfo      `json:"attributeStatusInfo,omitempty"`
	AttributeType       string           `json:"attributeType,omitempty" validate:"omitempty,oneof=Actual Target MinSet MaxSet"`
	AttributeValue      string           `json:"attributeValue,omitempty" validate:"max=2500"`
	Component           Component        `json:"component"`
	Variable            Variable         `json:"variable"`
	CustomData          *ocpp.CustomData `json:"customData,omitempty"`
}

type GetVariablesResponse struct {
	GetVariableResult []GetVariableResult `json:"getVariableResult" validate:"required,min=1,dive"`
	ocpp.Extensions
}

type SetVariableData struct {
	AttributeType  string           `json:"attributeType,omitempty" validate:"omitempty,oneof=Actual Target MinSet MaxSet"`
	AttributeValue string           `json:"attributeValue" validate:"required,max=2500"`
	Component      Component        `json:"component"`
	Variable       Variable         `json:"variable"`
	CustomData     *ocpp.CustomData `json:"customData,omitempty"`
}

type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData" validate:"required,min=1,dive"`
	ocpp.Extensions
}

type SetVariableResult struct {
	AttributeType       string           `json:"attributeType,omitempty" validate:"omitempty,oneof=Actual Target MinSet MaxSet"`
	AttributeStatus     string           `json:"attributeStatus" validate:"required,oneof=Accepted Rejected UnknownComponent UnknownVariable NotSupportedAttributeType RebootRequired"`
	AttributeStatusInfo *StatusInfo      `json:"attributeStatusInfo,omitempty"`
	Component           Component        `json:"component"`
	Variable            Variable         `json:"variable"`
	CustomData          *ocpp.CustomData `json:"customData,omitempty"`
}

type SetVariablesResponse struct {
	SetVariableResult []SetVariableResult `json:"setVariableResult" validate:"required,min=1,dive"`
	ocpp.Extensions
}

type ResetType string

const (
	ResetImmediate          ResetType = "Immediate"
	ResetOnIdle             ResetType = "OnIdle"
	ResetImmediateAndResume ResetType = "ImmediateAndResume"
)

type ResetRequest struct {
	Type   ResetType `json:"type" validate:"required,oneof=Immediate OnIdle ImmediateAndResume"`
	EvseID *int      `json:"evseId,omitempty" validate:"omitempty,gte=0"`
	ocpp.Extensions
}

type ResetResponse struct {
	Status     string      `json:"status" validate:"required,oneof=Accepted Rejected Scheduled"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}
