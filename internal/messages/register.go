package messages

import (
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/payload"
)

// Register installs a schema for every catalog action. Actions without a
// modelled schema use payload.Raw.
func Register(r *payload.Registry) {
	for _, a := range ocpp.Actions() {
		payload.RegisterRaw(r, a)
	}
	payload.Register[AuthorizeRequest, AuthorizeResponse](r, ocpp.Authorize)
	payload.Register[BootNotificationRequest, BootNotificationResponse](r, ocpp.BootNotification)
	payload.Register[CertificateSignedRequest, CertificateSignedResponse](r, ocpp.CertificateSigned)
	payload.Register[ChangeAvailabilityRequest, ChangeAvailabilityResponse](r, ocpp.ChangeAvailability)
	payload.Register[ClearCacheRequest, ClearCacheResponse](r, ocpp.ClearCache)
	payload.Register[ClearChargingProfileRequest, ClearChargingProfileResponse](r, ocpp.ClearChargingProfile)
	payload.Register[DataTransferRequest, DataTransferResponse](r, ocpp.DataTransfer)
	payload.Register[FirmwareStatusNotificationRequest, FirmwareStatusNotificationResponse](r, ocpp.FirmwareStatusNotification)
	payload.Register[GetBaseReportRequest, GetBaseReportResponse](r, ocpp.GetBaseReport)
	payload.Register[GetTransactionStatusRequest, GetTransactionStatusResponse](r, ocpp.GetTransactionStatus)
	payload.Register[GetVariablesRequest, GetVariablesResponse](r, ocpp.GetVariables)
	payload.Register[HeartbeatRequest, HeartbeatResponse](r, ocpp.Heartbeat)
	payload.Register[LogStatusNotificationRequest, LogStatusNotificationResponse](r, ocpp.LogStatusNotification)
	payload.Register[MeterValuesRequest, MeterValuesResponse](r, ocpp.MeterValues)
	payload.Register[NotifyEventRequest, NotifyEventResponse](r, ocpp.NotifyEvent)
	payload.Register[NotifyReportRequest, NotifyReportResponse](r, ocpp.NotifyReport)
	payload.Register[RequestStartTransactionRequest, RequestStartTransactionResponse](r, ocpp.RequestStartTransaction)
	payload.Register[RequestStopTransactionRequest, RequestStopTransactionResponse](r, ocpp.RequestStopTransaction)
	payload.Register[ResetRequest, ResetResponse](r, ocpp.Reset)
	payload.Register[SecurityEventNotificationRequest, SecurityEventNotificationResponse](r, ocpp.SecurityEventNotification)
	payload.Register[SetChargingProfileRequest, SetChargingProfileResponse](r, ocpp.SetChargingProfile)
	payload.Register[SetVariablesRequest, SetVariablesResponse](r, ocpp.SetVariables)
	payload.Register[SignCertificateRequest, SignCertificateResponse](r, ocpp.SignCertificate)
	payload.Register[StatusNotificationRequest, StatusNotificationResponse](r, ocpp.StatusNotification)
	payload.Register[TransactionEventRequest, TransactionEventResponse](r, ocpp.TransactionEvent)
	payload.Register[TriggerMessageRequest, TriggerMessageResponse](r, ocpp.TriggerMessage)
	payload.Register[UnlockConnectorRequest, UnlockConnectorResponse](r, ocpp.UnlockConnector)
}

// NewRegistry returns a registry populated by Register.
func NewRegistry() *payload.Registry {
	r := payload.NewRegistry()
	Register(r)
	return r
}
