package messages

import "github.com/gaspardpetit/csms/internal/ocpp"

type AuthorizeRequest struct {
	IdToken                     IdToken           `json:"idToken"`
	Certificate                 string            `json:"certificate,omitempty" validate:"max=10000"`
	ISO15118CertificateHashData []OCSPRequestData `json:"iso15118CertificateHashData,omitempty" validate:"omitempty,max=4,dive"`
	ocpp.Extensions
}

type AuthorizeResponse struct {
	IdTokenInfo       IdTokenInfo `json:"idTokenInfo"`
	CertificateStatus string      `json:"certificateStatus,omitempty" validate:"omitempty,oneof=Accepted SignatureError CertificateExpired CertificateRevoked NoCertificateAvailable CertChainError ContractCancelled"`
	ocpp.Extensions
}

type ConnectorStatus string

const (
	ConnectorAvailable   ConnectorStatus = "Available"
	ConnectorOccupied    ConnectorStatus = "Occupied"
	ConnectorReserved    ConnectorStatus = "Reserved"
	ConnectorUnavailable ConnectorStatus = "Unavailable"
	ConnectorFaulted     ConnectorStatus = "Faulted"
)

type StatusNotificationRequest struct {
	Timestamp       *ocpp.DateTime  `json:"timestamp" validate:"required"`
	ConnectorStatus ConnectorStatus `json:"connectorStatus" validate:"required,oneof=Available Occupied Reserved Unavailable Faulted"`
	EvseID          int             `json:"evseId" validate:"gte=0"`
	ConnectorID     int             `json:"connectorId" validate:"gte=0"`
	ocpp.Extensions
}

type StatusNotificationResponse struct {
	ocpp.Extensions
}

type MeterValuesRequest struct {
	EvseID     int          `json:"evseId" validate:"gte=0"`
	MeterValue []MeterValue `json:"meterValue" validate:"required,min=1,dive"`
	ocpp.Extensions
}

type MeterValuesResponse struct {
	ocpp.Extensions
}

type TransactionEventType string

const (
	TransactionEventStarted TransactionEventType = "Started"
	TransactionEventUpdated TransactionEventType = "Updated"
	TransactionEventEnded   TransactionEventType = "Ended"
)

type Transaction struct {
	TransactionID     string           `json:"transactionId" validate:"required,max=36"`
	ChargingState     string           `json:"chargingState,omitempty" validate:"omitempty,oneof=EVConnected Charging SuspendedEV SuspendedEVSE Idle"`
	TimeSpentCharging *int             `json:"timeSpentCharging,omitempty"`
	StoppedReason     string           `json:"stoppedReason,omitempty" validate:"max=40"`
	RemoteStartID     *int             `json:"remoteStartId,omitempty"`
	CustomData        *ocpp.CustomData `json:"customData,omitempty"`
}

type TransactionEventRequest struct {
	EventType          TransactionEventType `json:"eventType" validate:"required,oneof=Started Updated Ended"`
	Timestamp          *ocpp.DateTime       `json:"timestamp" validate:"required"`
	TriggerReason      string               `json:"triggerReason" validate:"required,max=40"`
	SeqNo              int                  `json:"seqNo" validate:"gte=0"`
	Offline            bool                 `json:"offline,omitempty"`
	NumberOfPhasesUsed *int                 `json:"numberOfPhasesUsed,omitempty" validate:"omitempty,min=0,max=3"`
	CableMaxCurrent    *int                 `json:"cableMaxCurrent,omitempty"`
	ReservationID      *int                 `json:"reservationId,omitempty"`
	TransactionInfo    Transaction          `json:"transactionInfo"`
	IdToken            *IdToken             `json:"idToken,omitempty"`
	EVSE               *EVSE                `json:"evse,omitempty"`
	MeterValue         []MeterValue         `json:"meterValue,omitempty" validate:"omitempty,min=1,dive"`
	ocpp.Extensions
}

type TransactionEventResponse struct {
	TotalCost              *float64        `json:"totalCost,omitempty"`
	ChargingPriority       *int            `json:"chargingPriority,omitempty" validate:"omitempty,min=-9,max=9"`
	IdTokenInfo            *IdTokenInfo    `json:"idTokenInfo,omitempty"`
	UpdatedPersonalMessage *MessageContent `json:"updatedPersonalMessage,omitempty"`
	ocpp.Extensions
}

type RequestStartTransactionRequest struct {
	EvseID          *int             `json:"evseId,omitempty" validate:"omitempty,gt=0"`
	RemoteStartID   int              `json:"remoteStartId"`
	IdToken         IdToken          `json:"idToken"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
	GroupIdToken    *IdToken         `json:"groupIdToken,omitempty"`
	ocpp.Extensions
}

type RequestStartTransactionResponse struct {
	Status        GenericStatus `json:"status" validate:"required,oneof=Accepted Rejected"`
	TransactionID string        `json:"transactionId,omitempty" validate:"max=36"`
	StatusInfo    *StatusInfo   `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type RequestStopTransactionRequest struct {
	TransactionID string `json:"transactionId" validate:"required,max=36"`
	ocpp.Extensions
}

type RequestStopTransactionResponse struct {
	Status     GenericStatus `json:"status" validate:"required,oneof=Accepted Rejected"`
	StatusInfo *StatusInfo   `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type GetTransactionStatusRequest struct {
	TransactionID string `json:"transactionId,omitempty" validate:"max=36"`
	ocpp.Extensions
}

type GetTransactionStatusResponse struct {
	OngoingIndicator *bool `json:"ongoingIndicator,omitempty"`
	MessagesInQueue  bool  `json:"messagesInQueue"`
	ocpp.Extensions
}
