// Package csms installs the default Charging Station Management System
// handlers: stations are accepted, their reports recorded and logged.
package csms

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/messages"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/stations"
)

// Options tune the default behaviour.
type Options struct {
	HeartbeatInterval time.Duration
	// AcceptedTokens limits authorization to these id tokens. Empty accepts all.
	AcceptedTokens []string
	// Pending answers BootNotification with Pending instead of Accepted.
	Pending bool
}

// Service is the default business logic.
type Service struct {
	stations *stations.Registry
	opts     Options
	tokens   map[string]struct{}
	log      zerolog.Logger
	now      func() time.Time
}

// New creates the service. Call Install to route messages to it.
func New(reg *stations.Registry, opts Options) *Service {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 5 * time.Minute
	}
	s := &Service{stations: reg, opts: opts, log: logx.Component("csms"), now: time.Now}
	if len(opts.AcceptedTokens) > 0 {
		s.tokens = make(map[string]struct{}, len(opts.AcceptedTokens))
		for _, t := range opts.AcceptedTokens {
			s.tokens[t] = struct{}{}
		}
	}
	return s
}

// Install registers the handlers on e.
func (s *Service) Install(e *dispatch.Engine) {
	dispatch.Handle(e, ocpp.BootNotification, s.bootNotification)
	dispatch.Handle(e, ocpp.Heartbeat, s.heartbeat)
	dispatch.Handle(e, ocpp.StatusNotification, s.statusNotification)
	dispatch.Handle(e, ocpp.Authorize, s.authorize)
	dispatch.Handle(e, ocpp.MeterValues, s.meterValues)
	dispatch.Handle(e, ocpp.TransactionEvent, s.transactionEvent)
	dispatch.Handle(e, ocpp.NotifyEvent, s.notifyEvent)
	dispatch.Handle(e, ocpp.NotifyReport, s.notifyReport)
	dispatch.Handle(e, ocpp.SecurityEventNotification, s.securityEvent)
	dispatch.Handle(e, ocpp.FirmwareStatusNotification, s.firmwareStatus)
	dispatch.Handle(e, ocpp.LogStatusNotification, s.logStatus)
	dispatch.Handle(e, ocpp.DataTransfer, s.dataTransfer)
}

func (s *Service) stationLog(c *dispatch.Conn) *zerolog.Logger {
	l := s.log.With().Str("station_id", c.StationID()).Logger()
	return &l
}

func (s *Service) bootNotification(ctx context.Context, c *dispatch.Conn, req *messages.BootNotificationRequest) (*messages.BootNotificationResponse, error) {
	status := messages.RegistrationAccepted
	if s.opts.Pending {
		status = messages.RegistrationPending
	}
	cs := req.ChargingStation
	now := s.now().UTC()
	err := s.stations.Update(ctx, c.StationID(), func(r *stations.Record) {
		r.Model = cs.Model
		r.VendorName = cs.VendorName
		r.SerialNumber = cs.SerialNumber
		r.FirmwareVersion = cs.FirmwareVersion
		r.BootReason = string(req.Reason)
		r.Registration = string(status)
		r.LastBoot = now
		r.LastSeen = now
	})
	if err != nil {
		return nil, err
	}
	s.stationLog(c).Info().Str("vendor", cs.VendorName).Str("model", cs.Model).Str("reason", string(req.Reason)).
		Str("status", string(status)).Msg("boot notification")
	return &messages.BootNotificationResponse{
		CurrentTime: ocpp.NewDateTime(now),
		Interval:    int(s.opts.HeartbeatInterval / time.Second),
		Status:      status,
	}, nil
}

func (s *Service) heartbeat(ctx context.Context, c *dispatch.Conn, _ *messages.HeartbeatRequest) (*messages.HeartbeatResponse, error) {
	s.stations.Touch(ctx, c.StationID())
	return &messages.HeartbeatResponse{CurrentTime: ocpp.NewDateTime(s.now())}, nil
}

// ConnectorKey names a connector in station records.
func ConnectorKey(evse, connector int) string {
	return strconv.Itoa(evse) + "/" + strconv.Itoa(connector)
}

func (s *Service) statusNotification(ctx context.Context, c *dispatch.Conn, req *messages.StatusNotificationRequest) (*messages.StatusNotificationResponse, error) {
	err := s.stations.Update(ctx, c.StationID(), func(r *stations.Record) {
		if r.Connectors == nil {
			r.Connectors = make(map[string]string)
		}
		r.Connectors[ConnectorKey(req.EvseID, req.ConnectorID)] = string(req.ConnectorStatus)
		r.LastSeen = s.now().UTC()
	})
	if err != nil {
		return nil, err
	}
	return &messages.StatusNotificationResponse{}, nil
}

func (s *Service) tokenInfo(tok messages.IdToken) messages.IdTokenInfo {
	if s.tokens == nil {
		return messages.IdTokenInfo{Status: messages.AuthorizationAccepted}
	}
	if _, ok := s.tokens[tok.IdToken]; ok {
		return messages.IdTokenInfo{Status: messages.AuthorizationAccepted}
	}
	return messages.IdTokenInfo{Status: messages.AuthorizationUnknown}
}

func (s *Service) authorize(ctx context.Context, c *dispatch.Conn, req *messages.AuthorizeRequest) (*messages.AuthorizeResponse, error) {
	info := s.tokenInfo(req.IdToken)
	s.stationLog(c).Info().Str("id_token_type", req.IdToken.Type).Str("status", string(info.Status)).Msg("authorize")
	return &messages.AuthorizeResponse{IdTokenInfo: info}, nil
}

func (s *Service) meterValues(ctx context.Context, c *dispatch.Conn, req *messages.MeterValuesRequest) (*messages.MeterValuesResponse, error) {
	s.stations.Touch(ctx, c.StationID())
	s.stationLog(c).Debug().Int("evse_id", req.EvseID).Int("samples", len(req.MeterValue)).Msg("meter values")
	return &messages.MeterValuesResponse{}, nil
}

func (s *Service) transactionEvent(ctx context.Context, c *dispatch.Conn, req *messages.TransactionEventRequest) (*messages.TransactionEventResponse, error) {
	s.stations.Touch(ctx, c.StationID())
	s.stationLog(c).Info().Str("event", string(req.EventType)).Str("transaction_id", req.TransactionInfo.TransactionID).
		Str("trigger", req.TriggerReason).Int("seq_no", req.SeqNo).Msg("transaction event")
	resp := &messages.TransactionEventResponse{}
	if req.IdToken != nil {
		info := s.tokenInfo(*req.IdToken)
		resp.IdTokenInfo = &info
	}
	return resp, nil
}

func (s *Service) notifyEvent(ctx context.Context, c *dispatch.Conn, req *messages.NotifyEventRequest) (*messages.NotifyEventResponse, error) {
	for _, ev := range req.EventData {
		s.stationLog(c).Info().Int("event_id", ev.EventID).Str("trigger", ev.Trigger).Str("component", ev.Component.Name).
			Str("variable", ev.Variable.Name).Str("value", ev.ActualValue).Msg("station event")
	}
	return &messages.NotifyEventResponse{}, nil
}

func (s *Service) notifyReport(ctx context.Context, c *dispatch.Conn, req *messages.NotifyReportRequest) (*messages.NotifyReportResponse, error) {
	s.stationLog(c).Info().Int("request_id", req.RequestID).Int("seq_no", req.SeqNo).Bool("tbc", req.Tbc).
		Int("entries", len(req.ReportData)).Msg("report")
	return &messages.NotifyReportResponse{}, nil
}

func (s *Service) securityEvent(ctx context.Context, c *dispatch.Conn, req *messages.SecurityEventNotificationRequest) (*messages.SecurityEventNotificationResponse, error) {
	s.stationLog(c).Warn().Str("type", req.Type).Str("tech_info", req.TechInfo).Msg("security event")
	return &messages.SecurityEventNotificationResponse{}, nil
}

func (s *Service) firmwareStatus(ctx context.Context, c *dispatch.Conn, req *messages.FirmwareStatusNotificationRequest) (*messages.FirmwareStatusNotificationResponse, error) {
	s.stationLog(c).Info().Str("status", req.Status).Msg("firmware status")
	return &messages.FirmwareStatusNotificationResponse{}, nil
}

func (s *Service) logStatus(ctx context.Context, c *dispatch.Conn, req *messages.LogStatusNotificationRequest) (*messages.LogStatusNotificationResponse, error) {
	s.stationLog(c).Info().Str("status", req.Status).Msg("log upload status")
	return &messages.LogStatusNotificationResponse{}, nil
}

// Vendor extensions are not understood by this CSMS.
func (s *Service) dataTransfer(ctx context.Context, c *dispatch.Conn, req *messages.DataTransferRequest) (*messages.DataTransferResponse, error) {
	s.stationLog(c).Info().Str("vendor_id", req.VendorID).Str("message_id", req.MessageID).Msg("data transfer")
	return &messages.DataTransferResponse{Status: messages.DataTransferUnknownVendorID}, nil
}
