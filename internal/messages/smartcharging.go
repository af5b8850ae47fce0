package messages

import "github.com/gaspardpetit/csms/internal/ocpp"

type ChargingProfilePurpose string

const (
	PurposeChargingStationExternalConstraints ChargingProfilePurpose = "ChargingStationExternalConstraints"
	PurposeChargingStationMaxProfile          ChargingProfilePurpose = "ChargingStationMaxProfile"
	PurposeTxDefaultProfile                   ChargingProfilePurpose = "TxDefaultProfile"
	PurposeTxProfile                          ChargingProfilePurpose = "TxProfile"
	PurposePriorityCharging                   ChargingProfilePurpose = "PriorityCharging"
	PurposeLocalGeneration                    ChargingProfilePurpose = "LocalGeneration"
)

type ChargingRateUnit string

const (
	ChargingRateWatts ChargingRateUnit = "W"
	ChargingRateAmps  ChargingRateUnit = "A"
)

type Cost struct {
	CostKind         string           `json:"costKind" validate:"required,oneof=CarbonDioxideEmission RelativePricePercentage RenewableGenerationPercentage"`
	Amount           int              `json:"amount"`
	AmountMultiplier *int             `json:"amountMultiplier,omitempty" validate:"omitempty,min=-3,max=3"`
	CustomData       *ocpp.CustomData `json:"customData,omitempty"`
}

type ConsumptionCost struct {
	StartValue float64          `json:"startValue"`
	Cost       []Cost           `json:"cost" validate:"required,min=1,max=3,dive"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type RelativeTimeInterval struct {
	Start      int              `json:"start"`
	Duration   *int             `json:"duration,omitempty"`
	CustomData *ocpp.CustomData `json:"customData,omitempty"`
}

type SalesTariffEntry struct {
	RelativeTimeInterval RelativeTimeInterval `json:"relativeTimeInterval"`
	EPriceLevel          *int                 `json:"ePriceLevel,omitempty" validate:"omitempty,gte=0"`
	ConsumptionCost      []ConsumptionCost    `json:"consumptionCost,omitempty" validate:"omitempty,max=3,dive"`
	CustomData           *ocpp.CustomData     `json:"customData,omitempty"`
}

type SalesTariff struct {
	ID                     int                `json:"id"`
	SalesTariffDescription string             `json:"salesTariffDescription,omitempty" validate:"max=32"`
	NumEPriceLevels        *int               `json:"numEPriceLevels,omitempty"`
	SalesTariffEntry       []SalesTariffEntry `json:"salesTariffEntry" validate:"required,min=1,max=1024,dive"`
	CustomData             *ocpp.CustomData   `json:"customData,omitempty"`
}

type ChargingSchedulePeriod struct {
	StartPeriod   int              `json:"startPeriod"`
	Limit         *float64         `json:"limit,omitempty"`
	NumberPhases  *int             `json:"numberPhases,omitempty" validate:"omitempty,min=0,max=3"`
	PhaseToUse    *int             `json:"phaseToUse,omitempty" validate:"omitempty,min=0,max=3"`
	OperationMode string           `json:"operationMode,omitempty" validate:"max=32"`
	CustomData    *ocpp.CustomData `json:"customData,omitempty"`
}

type ChargingSchedule struct {
	ID                     int                      `json:"id"`
	StartSchedule          *ocpp.DateTime           `json:"startSchedule,omitempty"`
	Duration               *int                     `json:"duration,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit" validate:"required,oneof=W A"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1,max=1024,dive"`
	SalesTariff            *SalesTariff             `json:"salesTariff,omitempty"`
	CustomData             *ocpp.CustomData         `json:"customData,omitempty"`
}

type ChargingProfile struct {
	ID                     int                    `json:"id"`
	StackLevel             int                    `json:"stackLevel" validate:"gte=0"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose" validate:"required,oneof=ChargingStationExternalConstraints ChargingStationMaxProfile TxDefaultProfile TxProfile PriorityCharging LocalGeneration"`
	ChargingProfileKind    string                 `json:"chargingProfileKind" validate:"required,oneof=Absolute Recurring Relative Dynamic"`
	RecurrencyKind         string                 `json:"recurrencyKind,omitempty" validate:"omitempty,oneof=Daily Weekly"`
	ValidFrom              *ocpp.DateTime         `json:"validFrom,omitempty"`
	ValidTo                *ocpp.DateTime         `json:"validTo,omitempty"`
	TransactionID          string                 `json:"transactionId,omitempty" validate:"max=36"`
	ChargingSchedule       []ChargingSchedule     `json:"chargingSchedule" validate:"required,min=1,max=3,dive"`
	CustomData             *ocpp.CustomData       `json:"customData,omitempty"`
}

type SetChargingProfileRequest struct {
	EvseID          int             `json:"evseId" validate:"gte=0"`
	ChargingProfile ChargingProfile `json:"chargingProfile"`
	ocpp.Extensions
}

type SetChargingProfileResponse struct {
	Status     GenericStatus `json:"status" validate:"required,oneof=Accepted Rejected"`
	StatusInfo *StatusInfo   `json:"statusInfo,omitempty"`
	ocpp.Extensions
}

type ClearChargingProfileCriteria struct {
	EvseID                 *int                   `json:"evseId,omitempty" validate:"omitempty,gte=0"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int                   `json:"stackLevel,omitempty" validate:"omitempty,gte=0"`
	CustomData             *ocpp.CustomData       `json:"customData,omitempty"`
}

type ClearChargingProfileRequest struct {
	ChargingProfileID       *int                          `json:"chargingProfileId,omitempty"`
	ChargingProfileCriteria *ClearChargingProfileCriteria `json:"chargingProfileCriteria,omitempty"`
	ocpp.Extensions
}

type ClearChargingProfileResponse struct {
	Status     string      `json:"status" validate:"required,oneof=Accepted Unknown"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
	ocpp.Extensions
}
