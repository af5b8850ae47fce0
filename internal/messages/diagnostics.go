package messages

import "github.com/gaspardpetit/csms/internal/ocpp"

type EventData struct {
	EventID               int              `json:"eventId"`
	Timestamp             *ocpp.DateTime   `json:"timestamp" validate:"required"`
	Trigger               string           `json:"trigger" validate:"required,oneof=Alerting Delta Periodic"`
	Cause                 *int             `json:"cause,omitempty"`
	ActualValue           string           `json:"actualValue" validate:"required,max=2500"`
	TechCode              string           `json:"techCode,omitempty" validate:"max=50"`
	TechInfo              string           `json:"techInfo,omitempty" validate:"max=500"`
	Cleared               bool             `json:"cleared,omitempty"`
	TransactionID         string           `json:"transactionId,omitempty" validate:"max=36"`
	VariableMonitoringID  *int             `json:"variableMonitoringId,omitempty"`
	EventNotificationType string           `json:"eventNotificationType" validate:"required,oneof=HardWiredNotification HardWiredMonitor PreconfiguredMonitor CustomMonitor"`
	Component             Component        `json:"component"`
	Variable              Variable         `json:"variable"`
	CustomData            *ocpp.CustomData `json:"customData,omitempty"`
}

type NotifyEventRequest struct {
	GeneratedAt *ocpp.DateTime `json:"generatedAt" validate:"required"`
	Tbc         bool           `json:"tbc,omitempty"`
	SeqNo       int            `json:"seqNo" validate:"gte=0"`
	EventData   []EventData    `json:"eventData" validate:"required,min=1,dive"`
	ocpp.Extensions
}

type NotifyEventResponse struct {
	ocpp.Extensions
}

type SecurityEventNotificationRequest struct {
	Type      string         `json:"type" validate:"required,max=50"`
	Timestamp *ocpp.DateTime `json:"timestamp" validate:"required"`
	TechInfo  string         `json:"techInfo,omitempty" validate:"max=255"`
	ocpp.Extensions
}

type SecurityEventNotificationResponse struct {
	ocpp.Extensions
}

type FirmwareStatusNotificationRequest struct {
	Status     string      `json:"status" validate:"required,oneof=Downloaded DownloadFailed Downloading DownloadScheduled DownloadPaused Idle InstallationFailed Installing Installed InstallRebooting InstallScheduled InstallVerificationFailed InvalidSignature SignatureVerified"`
	RequestID  *int        `json:"requestId,omitempty"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type FirmwareStatusNotificationResponse struct {
	ocpp.Extensions
}

type LogStatusNotificationRequest struct {
	Status     string      `json:"status" validate:"required,oneof=BadMessage Idle NotSupportedOperation PermissionDenied Uploaded UploadFailure Uploading AcceptedCanceled"`
	RequestID  *int        `json:"requestId,omitempty"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type LogStatusNotificationResponse struct {
	ocpp.Extensions
}
