// Package messages holds the Go schemas of the OCPP 2.1 payloads the CSMS
// interprets. Every request and response embeds ocpp.Extensions. Fields
// without omitempty are required on the wire.
package messages

import "github.com/gaspardpetit/csms/internal/ocpp"

type GenericStatus string

const (
	GenericStatusAccepted GenericStatus = "Accepted"
	GenericStatusRejected GenericStatus = "Rejected"
)

type StatusInfo struct {
	ReasonCode     string           `json:"reasonCode" validate:"required,max=20"`
	AdditionalInfo string           `json:"additionalInfo,omitempty" validate:"max=1024"`
	CustomData     *ocpp.CustomData `json:"customData,omitempty"`
}

type EVSE struct {
	ID          int              `json:"id" validate:"gte=0"`
	ConnectorID *int             `json:"connectorId,omitempty" validate:"omitempty,gte=0"`
	CustomData  *ocpp.CustomData `json:"customData,omitempty"`
}

type AdditionalInfo struct {
	AdditionalIdToken string           `json:"additionalIdToken" validate:"required,max=255"`
	Type              string           `json:"type" validate:"required,max=50"`
	CustomData        *ocpp.CustomData `json:"customData,omitempty"`
}

type IdToken struct {
	IdToken        string           `json:"idToken" validate:"required,max=255"`
	Type           string           `json:"type" validate:"required,max=20"`
	AdditionalInfo []AdditionalInfo `json:"additionalInfo,omitempty" validate:"omitempty,dive"`
	CustomData     *ocpp.CustomData `json:"customData,omitempty"`
}

type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationNoCredit     AuthorizationStatus = "NoCredit"
	AuthorizationUnknown      AuthorizationStatus = "Unknown"
)

type MessageContent struct {
	Format     string           `json:"format" validate:"required,oneof=ASCII HTML URI UTF8 QRCODE"`
	Language   string           `json:"language,omitempty" validate:"max=8"`
	Content    string           `json:"content" validate:"required,max=1024"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type IdTokenInfo struct {
	Status              AuthorizationStatus `json:"status" validate:"required,oneof=Accepted Blocked ConcurrentTx Expired Invalid NoCredit NotAllowedTypeEVSE NotAtThisLocation NotAtThisTime Unknown"`
	CacheExpiryDateTime *ocpp.DateTime      `json:"cacheExpiryDateTime,omitempty"`
	ChargingPriority    *int                `json:"chargingPriority,omitempty" validate:"omitempty,min=-9,max=9"`
	GroupIdToken        *IdToken            `json:"groupIdToken,omitempty"`
	Language1           string              `json:"language1,omitempty" validate:"max=8"`
	Language2           string              `json:"language2,omitempty" validate:"max=8"`
	EvseID              []int               `json:"evseId,omitempty" validate:"omitempty,min=1"`
	PersonalMessage     *MessageContent     `json:"personalMessage,omitempty"`
	CustomData          *ocpp.CustomData    `json:"customData,omitempty"`
}

type Component struct {
	Name       string           `json:"name" validate:"required,max=50"`
	Instance   string           `json:"instance,omitempty" validate:"max=50"`
	EVSE       *EVSE            `json:"evse,omitempty"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type Variable struct {
	Name       string           `json:"name" validate:"required,max=50"`
	Instance   string           `json:"instance,omitempty" validate:"max=50"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type UnitOfMeasure struct {
	Unit       string           `json:"unit,omitempty" validate:"max=20"`
	Multiplier *int             `json:"multiplier,omitempty"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type SampledValue struct {
	Value         float64          `json:"value"`
	Context       string           `json:"context,omitempty" validate:"omitempty,oneof=Interruption.Begin Interruption.End Other Sample.Clock Sample.Periodic Transaction.Begin Transaction.End Trigger"`
	Measurand     string           `json:"measurand,omitempty" validate:"max=50"`
	Phase         string           `json:"phase,omitempty" validate:"omitempty,oneof=L1 L2 L3 N L1-N L2-N L3-N L1-L2 L2-L3 L3-L1"`
	Location      string           `json:"location,omitempty" validate:"omitempty,oneof=Body Cable EV Inlet Outlet Upstream"`
	UnitOfMeasure *UnitOfMeasure   `json:"unitOfMeasure,omitempty"`
	CustomData    *ocpp.CustomData `json:"customData,omitempty"`
}

type MeterValue struct {
	Timestamp    *ocpp.DateTime   `json:"timestamp" validate:"required"`
	SampledValue []SampledValue   `json:"sampledValue" validate:"required,min=1,dive"`
	CustomData   *ocpp.CustomData `json:"customData,omitempty"`
}

type OCSPRequestData struct {
	HashAlgorithm  string           `json:"hashAlgorithm" validate:"required,oneof=SHA256 SHA384 SHA512"`
	IssuerNameHash string           `json:"issuerNameHash" validate:"required,max=128"`
	IssuerKeyHash  string           `json:"issuerKeyHash" validate:"required,max=128"`
	SerialNumber   string           `json:"serialNumber" validate:"required,max=40"`
	ResponderURL   string           `json:"responderURL" validate:"required,max=2000"`
	CustomData     *ocpp.CustomData `json:"customData,omitempty"`
}

type CertificateHashData struct {
	HashAlgorithm  string           `json:"hashAlgorithm" validate:"required,oneof=SHA256 SHA384 SHA512"`
	IssuerNameHash string           `json:"issuerNameHash" validate:"required,max=128"`
	IssuerKeyHash  string           `json:"issuerKeyHash" validate:"required,max=128"`
	SerialNumber   string           `json:"serialNumber" validate:"required,max=40"`
	CustomData     *ocpp.CustomData `json:"customData,omitempty"`
}
