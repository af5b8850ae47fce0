package messages

import (
	"encoding/json"

	"github.com/gaspardpetit/csms/internal/ocpp"
)

type ClearCacheRequest struct {
	ocpp.Extensions
}

type ClearCacheResponse struct {
	Status     GenericStatus `json:"status" validate:"required,oneof=Accepted Rejected"`
	StatusInfo *StatusInfo   `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type ChangeAvailabilityRequest struct {
	EVSE              *EVSE  `json:"evse,omitempty"`
	OperationalStatus string `json:"operationalStatus" validate:"required,oneof=Inoperative Operative"`
	ocpp.Extensions
}

type ChangeAvailabilityResponse struct {
	Status     string      `json:"status" validate:"required,oneof=Accepted Rejected Scheduled"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required,oneof=BootNotification LogStatusNotification FirmwareStatusNotification Heartbeat MeterValues SignChargingStationCertificate SignV2GCertificate SignV2G20Certificate StatusNotification TransactionEvent SignCombinedCertificate PublishFirmwareStatusNotification CustomTrigger"`
	EVSE             *EVSE  `json:"evse,omitempty"`
	CustomTrigger    string `json:"customTrigger,omitempty" validate:"max=50"`
	ocpp.Extensions
}

type TriggerMessageResponse struct {
	Status     string      `json:"status" validate:"required,oneof=Accepted Rejected NotImplemented"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type UnlockConnectorRequest struct {
	EvseID      int `json:"evseId" validate:"gte=0"`
	ConnectorID int `json:"connectorId" validate:"gte=0"`
	ocpp.Extensions
}

type UnlockConnectorResponse struct {
	Status     string      `json:"status" validate:"required,oneof=Unlocked UnlockFailed OngoingAuthorizedTransaction UnknownConnector"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type DataTransferStatus string

const (
	DataTransferAccepted         DataTransferStatus = "Accepted"
	DataTransferRejected         DataTransferStatus = "Rejected"
	DataTransferUnknownMessageID DataTransferStatus = "UnknownMessageId"
	DataTransferUnknownVendorID  DataTransferStatus = "UnknownVendorId"
)

type DataTransferRequest struct {
	MessageID string          `json:"messageId,omitempty" validate:"max=50"`
	// Data is any JSON value, carried verbatim.
	Data      json.RawMessage `json:"data,omitempty"`
	VendorID  string          `json:"vendorId" validate:"required,max=255"`
	ocpp.Extensions
}

type DataTransferResponse struct {
	Status     DataTransferStatus `json:"status" validate:"required,oneof=Accepted Rejected UnknownMessageId UnknownVendorId"`
	StatusInfo *StatusInfo        `json:"statusInfo,omitempty"`
	Data       json.RawMessage    `json:"data,omitempty"`
	ocpp.Extensions
}
