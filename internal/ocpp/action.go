package ocpp

import (
	"sort"
	"strings"
)

// Action names an OCPP operation carried by a Call.
type Action string

// Role is the side of the link a peer plays.
type Role int

const (
	RoleCSMS Role = iota
	RoleChargingStation
)

func (r Role) String() string {
	if r == RoleChargingStation {
		return "ChargingStation"
	}
	return "CSMS"
}

// Peer returns the opposite role.
func (r Role) Peer() Role {
	if r == RoleCSMS {
		return RoleChargingStation
	}
	return RoleCSMS
}

// Direction records which roles may initiate an action.
type Direction uint8

const (
	FromStation Direction = 1 << iota
	FromCSMS

	Both = FromStation | FromCSMS
)

// SentBy reports whether a peer playing role may send requests for the action.
func (d Direction) SentBy(role Role) bool {
	switch role {
	case RoleCSMS:
		return d&FromCSMS != 0
	case RoleChargingStation:
		return d&FromStation != 0
	}
	return false
}

func (d Direction) String() string {
	switch d {
	case FromStation:
		return "station->csms"
	case FromCSMS:
		return "csms->station"
	case Both:
		return "both"
	}
	return "none"
}

// Charging station initiated actions.
const (
	Authorize                         Action = "Authorize"
	BatterySwap                       Action = "BatterySwap"
	BootNotification                  Action = "BootNotification"
	ClearedChargingLimit              Action = "ClearedChargingLimit"
	ClosePeriodicEventStream          Action = "ClosePeriodicEventStream"
	FirmwareStatusNotification        Action = "FirmwareStatusNotification"
	Get15118EVCertificate             Action = "Get15118EVCertificate"
	GetCertificateChainStatus         Action = "GetCertificateChainStatus"
	GetCertificateStatus              Action = "GetCertificateStatus"
	Heartbeat                         Action = "Heartbeat"
	LogStatusNotification             Action = "LogStatusNotification"
	MeterValues                       Action = "MeterValues"
	NotifyChargingLimit               Action = "NotifyChargingLimit"
	NotifyCustomerInformation         Action = "NotifyCustomerInformation"
	NotifyDERAlarm                    Action = "NotifyDERAlarm"
	NotifyDERStartStop                Action = "NotifyDERStartStop"
	NotifyDisplayMessages             Action = "NotifyDisplayMessages"
	NotifyEVChargingNeeds             Action = "NotifyEVChargingNeeds"
	NotifyEVChargingSchedule          Action = "NotifyEVChargingSchedule"
	NotifyEvent                       Action = "NotifyEvent"
	NotifyMonitoringReport            Action = "NotifyMonitoringReport"
	NotifyPeriodicEventStream         Action = "NotifyPeriodicEventStream"
	NotifyPriorityCharging            Action = "NotifyPriorityCharging"
	NotifyQRCodeScanned               Action = "NotifyQRCodeScanned"
	NotifyReport                      Action = "NotifyReport"
	NotifySettlement                  Action = "NotifySettlement"
	OpenPeriodicEventStream           Action = "OpenPeriodicEventStream"
	PublishFirmwareStatusNotification Action = "PublishFirmwareStatusNotification"
	PullDynamicScheduleUpdate         Action = "PullDynamicScheduleUpdate"
	ReportChargingProfiles            Action = "ReportChargingProfiles"
	ReportDERControl                  Action = "ReportDERControl"
	ReservationStatusUpdate           Action = "ReservationStatusUpdate"
	SecurityEventNotification         Action = "SecurityEventNotification"
	SignCertificate                   Action = "SignCertificate"
	StatusNotification                Action = "StatusNotification"
	TransactionEvent                  Action = "TransactionEvent"
	VatNumberValidation               Action = "VatNumberValidation"
)

// CSMS initiated actions.
const (
	AdjustPeriodicEventStream   Action = "AdjustPeriodicEventStream"
	AFRRSignal                  Action = "AFRRSignal"
	CancelReservation           Action = "CancelReservation"
	CertificateSigned           Action = "CertificateSigned"
	ChangeAvailability          Action = "ChangeAvailability"
	ChangeTransactionTariff     Action = "ChangeTransactionTariff"
	ClearCache                  Action = "ClearCache"
	ClearChargingProfile        Action = "ClearChargingProfile"
	ClearDERControl             Action = "ClearDERControl"
	ClearDisplayMessage         Action = "ClearDisplayMessage"
	ClearTariffs                Action = "ClearTariffs"
	ClearVariableMonitoring     Action = "ClearVariableMonitoring"
	CostUpdated                 Action = "CostUpdated"
	CustomerInformation         Action = "CustomerInformation"
	DeleteCertificate           Action = "DeleteCertificate"
	GetBaseReport               Action = "GetBaseReport"
	GetChargingProfiles         Action = "GetChargingProfiles"
	GetCompositeSchedule        Action = "GetCompositeSchedule"
	GetDERControl               Action = "GetDERControl"
	GetDisplayMessages          Action = "GetDisplayMessages"
	GetInstalledCertificateIds  Action = "GetInstalledCertificateIds"
	GetLocalListVersion         Action = "GetLocalListVersion"
	GetLog                      Action = "GetLog"
	GetMonitoringReport         Action = "GetMonitoringReport"
	GetPeriodicEventStream      Action = "GetPeriodicEventStream"
	GetReport                   Action = "GetReport"
	GetTariffs                  Action = "GetTariffs"
	GetTransactionStatus        Action = "GetTransactionStatus"
	GetVariables                Action = "GetVariables"
	InstallCertificate          Action = "InstallCertificate"
	NotifyAllowedEnergyTransfer Action = "NotifyAllowedEnergyTransfer"
	NotifyWebPaymentStarted     Action = "NotifyWebPaymentStarted"
	PublishFirmware             Action = "PublishFirmware"
	RequestBatterySwap          Action = "RequestBatterySwap"
	RequestStartTransaction     Action = "RequestStartTransaction"
	RequestStopTransaction      Action = "RequestStopTransaction"
	ReserveNow                  Action = "ReserveNow"
	Reset                       Action = "Reset"
	SendLocalList               Action = "SendLocalList"
	SetChargingProfile          Action = "SetChargingProfile"
	SetDERControl               Action = "SetDERControl"
	SetDefaultTariff            Action = "SetDefaultTariff"
	SetDisplayMessage           Action = "SetDisplayMessage"
	SetMonitoringBase           Action = "SetMonitoringBase"
	SetMonitoringLevel          Action = "SetMonitoringLevel"
	SetNetworkProfile           Action = "SetNetworkProfile"
	SetVariableMonitoring       Action = "SetVariableMonitoring"
	SetVariables                Action = "SetVariables"
	TriggerMessage              Action = "TriggerMessage"
	UnlockConnector             Action = "UnlockConnector"
	UnpublishFirmware           Action = "UnpublishFirmware"
	UpdateDynamicSchedule       Action = "UpdateDynamicSchedule"
	UpdateFirmware              Action = "UpdateFirmware"
	UsePriorityCharging         Action = "UsePriorityCharging"
)

// DataTransfer may be initiated by either side.
const DataTransfer Action = "DataTransfer"

// Catalog maps every known OCPP 2.1 action to the roles allowed to send it.
var Catalog = map[Action]Direction{
	Authorize:                         FromStation,
	BatterySwap:                       FromStation,
	BootNotification:                  FromStation,
	ClearedChargingLimit:              FromStation,
	ClosePeriodicEventStream:          FromStation,
	FirmwareStatusNotification:        FromStation,
	Get15118EVCertificate:             FromStation,
	GetCertificateChainStatus:         FromStation,
	GetCertificateStatus:              FromStation,
	Heartbeat:                         FromStation,
	LogStatusNotification:             FromStation,
	MeterValues:                       FromStation,
	NotifyChargingLimit:               FromStation,
	NotifyCustomerInformation:         FromStation,
	NotifyDERAlarm:                    FromStation,
	NotifyDERStartStop:                FromStation,
	NotifyDisplayMessages:             FromStation,
	NotifyEVChargingNeeds:             FromStation,
	NotifyEVChargingSchedule:          FromStation,
	NotifyEvent:                       FromStation,
	NotifyMonitoringReport:            FromStation,
	NotifyPeriodicEventStream:         FromStation,
	NotifyPriorityCharging:            FromStation,
	NotifyQRCodeScanned:               FromStation,
	NotifyReport:                      FromStation,
	NotifySettlement:                  FromStation,
	OpenPeriodicEventStream:           FromStation,
	PublishFirmwareStatusNotification: FromStation,
	PullDynamicScheduleUpdate:         FromStation,
	ReportChargingProfiles:            FromStation,
	ReportDERControl:                  FromStation,
	ReservationStatusUpdate:           FromStation,
	SecurityEventNotification:         FromStation,
	SignCertificate:                   FromStation,
	StatusNotification:                FromStation,
	TransactionEvent:                  FromStation,
	VatNumberValidation:               FromStation,
	AdjustPeriodicEventStream:         FromCSMS,
	AFRRSignal:                        FromCSMS,
	CancelReservation:                 FromCSMS,
	CertificateSigned:                 FromCSMS,
	ChangeAvailability:                FromCSMS,
	ChangeTransactionTariff:           FromCSMS,
	ClearCache:                        FromCSMS,
	ClearChargingProfile:              FromCSMS,
	ClearDERControl:                   FromCSMS,
	ClearDisplayMessage:               FromCSMS,
	ClearTariffs:                      FromCSMS,
	ClearVariableMonitoring:           FromCSMS,
	CostUpdated:                       FromCSMS,
	CustomerInformation:               FromCSMS,
	DeleteCertificate:                 FromCSMS,
	GetBaseReport:                     FromCSMS,
	GetChargingProfiles:               FromCSMS,
	GetCompositeSchedule:              FromCSMS,
	GetDERControl:                     FromCSMS,
	GetDisplayMessages:                FromCSMS,
	GetInstalledCertificateIds:        FromCSMS,
	GetLocalListVersion:               FromCSMS,
	GetLog:                            FromCSMS,
	GetMonitoringReport:               FromCSMS,
	GetPeriodicEventStream:            FromCSMS,
	GetReport:                         FromCSMS,
	GetTariffs:                        FromCSMS,
	GetTransactionStatus:              FromCSMS,
	GetVariables:                      FromCSMS,
	InstallCertificate:                FromCSMS,
	NotifyAllowedEnergyTransfer:       FromCSMS,
	NotifyWebPaymentStarted:           FromCSMS,
	PublishFirmware:                   FromCSMS,
	RequestBatterySwap:                FromCSMS,
	RequestStartTransaction:           FromCSMS,
	RequestStopTransaction:            FromCSMS,
	ReserveNow:                        FromCSMS,
	Reset:                             FromCSMS,
	SendLocalList:                     FromCSMS,
	SetChargingProfile:                FromCSMS,
	SetDERControl:                     FromCSMS,
	SetDefaultTariff:                  FromCSMS,
	SetDisplayMessage:                 FromCSMS,
	SetMonitoringBase:                 FromCSMS,
	SetMonitoringLevel:                FromCSMS,
	SetNetworkProfile:                 FromCSMS,
	SetVariableMonitoring:             FromCSMS,
	SetVariables:                      FromCSMS,
	TriggerMessage:                    FromCSMS,
	UnlockConnector:                   FromCSMS,
	UnpublishFirmware:                 FromCSMS,
	UpdateDynamicSchedule:             FromCSMS,
	UpdateFirmware:                    FromCSMS,
	UsePriorityCharging:               FromCSMS,
	DataTransfer:                      Both,
}

// Lookup returns the direction of a known action.
func Lookup(a Action) (Direction, bool) {
	d, ok := Catalog[a]
	return d, ok
}

// Actions returns every catalog action sorted by name.
func Actions() []Action {
	out := make([]Action, 0, len(Catalog))
	for a := range Catalog {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseAction resolves a case-insensitive action name against the catalog.
func ParseAction(s string) (Action, bool) {
	if _, ok := Catalog[Action(s)]; ok {
		return Action(s), true
	}
	for a := range Catalog {
		if strings.EqualFold(string(a), s) {
			return a, true
		}
	}
	return "", false
}
