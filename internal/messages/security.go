package messages

import "github.com/gaspardpetit/csms/internal/ocpp"

type SignCertificateRequest struct {
	CSR                 string               `json:"csr" validate:"required,max=11000"`
	CertificateType     string               `json:"certificateType,omitempty" validate:"omitempty,oneof=ChargingStationCertificate V2GCertificate V2G20Certificate"`
	HashRootCertificate *CertificateHashData `json:"hashRootCertificate,omitempty"`
	RequestID           *int                 `json:"requestId,omitempty"`
	ocpp.Extensions
}

type SignCertificateResponse struct {
	Status     GenericStatus `json:"status" validate:"required,oneof=Accepted Rejected"`
	StatusInfo *StatusInfo   `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type CertificateSignedRequest struct {
	CertificateChain string `json:"certificateChain" validate:"required,max=100000"`
	CertificateType  string `json:"certificateType,omitempty" validate:"omitempty,oneof=ChargingStationCertificate V2GCertificate V2G20Certificate"`
	RequestID        *int   `json:"requestId,omitempty"`
	ocpp.Extensions
}

type CertificateSignedResponse struct {
	Status     GenericStatus `json:"status" validate:"required,oneof=Accepted Rejected"`
	StatusInfo *StatusInfo   `json:"statusInfo,omitempty"`
	ocpp.Extensions
}
