package server

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaspardpetit/csms/core/logx"
)

var (
	specOnce sync.Once
	specJSON []byte
)

// OpenAPI describes the management API.
func OpenAPI() *openapi3.T {
	errResp := openapi3.NewResponse().WithDescription("error").WithJSONSchema(
		openapi3.NewObjectSchema().
			WithProperty("error", openapi3.NewStringSchema()).
			WithProperty("code", openapi3.NewStringSchema()).
			WithProperty("description", openapi3.NewStringSchema()),
	)
	station := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("vendor_name", openapi3.NewStringSchema()).
		WithProperty("model", openapi3.NewStringSchema()).
		WithProperty("firmware_version", openapi3.NewStringSchema()).
		WithProperty("registration", openapi3.NewStringSchema()).
		WithProperty("connected", openapi3.NewBoolSchema()).
		WithProperty("last_seen", openapi3.NewDateTimeSchema())
	event := openapi3.NewObjectSchema().
		WithProperty("seq", openapi3.NewInt64Schema()).
		WithProperty("phase", enum("request_sent", "request_received", "response_sent", "response_received")).
		WithProperty("action", openapi3.NewStringSchema()).
		WithProperty("message_id", openapi3.NewStringSchema()).
		WithProperty("timestamp", openapi3.NewDateTimeSchema()).
		WithProperty("request", openapi3.NewObjectSchema()).
		WithProperty("response", openapi3.NewObjectSchema())

	idParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema())}
	actionParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("action").WithSchema(openapi3.NewStringSchema())}
	query := func(name string, s *openapi3.Schema) *openapi3.ParameterRef {
		return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).WithSchema(s)}
	}

	healthz := openapi3.NewOperation()
	healthz.OperationID = "getHealthz"
	healthz.Summary = "Readiness of this node"
	healthz.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("ready").WithJSONSchema(
		openapi3.NewObjectSchema().WithProperty("status", enum("ready", "not_ready", "draining"))))
	healthz.AddResponse(http.StatusServiceUnavailable, openapi3.NewResponse().WithDescription("not ready or draining"))

	list := openapi3.NewOperation()
	list.OperationID = "listStations"
	list.Summary = "Known charging stations"
	list.Parameters = openapi3.Parameters{query("format", enum("json", "text"))}
	list.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("stations").WithJSONSchema(openapi3.NewArraySchema().WithItems(station)))

	get := openapi3.NewOperation()
	get.OperationID = "getStation"
	get.Parameters = openapi3.Parameters{idParam}
	get.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("station").WithJSONSchema(station))
	get.AddResponse(http.StatusNotFound, errResp)

	call := openapi3.NewOperation()
	call.OperationID = "callStation"
	call.Summary = "Send an OCPP request to a connected station"
	call.Parameters = openapi3.Parameters{idParam, actionParam, query("timeout", openapi3.NewStringSchema())}
	call.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithJSONSchema(openapi3.NewObjectSchema())}
	call.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("response payload").WithJSONSchema(openapi3.NewObjectSchema()))
	call.AddResponse(http.StatusBadRequest, errResp)
	call.AddResponse(http.StatusNotFound, errResp)
	call.AddResponse(http.StatusBadGateway, errResp)
	call.AddResponse(http.StatusGatewayTimeout, errResp)

	events := openapi3.NewOperation()
	events.OperationID = "listEvents"
	events.Summary = "Recent events, newest first"
	events.Parameters = openapi3.Parameters{
		query("limit", openapi3.NewIntegerSchema()),
		query("before", openapi3.NewInt64Schema()),
		query("station", openapi3.NewStringSchema()),
		query("action", openapi3.NewStringSchema()),
	}
	events.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("events").WithJSONSchema(openapi3.NewArraySchema().WithItems(event)))

	stream := openapi3.NewOperation()
	stream.OperationID = "streamEvents"
	stream.Summary = "Live events as Server-Sent Events"
	stream.Parameters = openapi3.Parameters{
		query("station", openapi3.NewStringSchema()),
		query("action", openapi3.NewStringSchema()),
		query("phase", openapi3.NewStringSchema()),
	}
	stream.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("event stream").
		WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/event-stream"})))

	bearer := openapi3.SecurityRequirements{openapi3.NewSecurityRequirement().Authenticate("bearer")}
	for _, op := range []*openapi3.Operation{list, get, call, events, stream} {
		op.Security = &bearer
	}

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: "csms", Version: "1.0.0"},
		Components: &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				"bearer": &openapi3.SecuritySchemeRef{Value: openapi3.NewSecurityScheme().WithType("http").WithScheme("bearer")},
			},
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath("/healthz", &openapi3.PathItem{Get: healthz}),
			openapi3.WithPath("/api/stations", &openapi3.PathItem{Get: list}),
			openapi3.WithPath("/api/stations/{id}", &openapi3.PathItem{Get: get}),
			openapi3.WithPath("/api/stations/{id}/call/{action}", &openapi3.PathItem{Post: call}),
			openapi3.WithPath("/api/events", &openapi3.PathItem{Get: events}),
			openapi3.WithPath("/api/events/stream", &openapi3.PathItem{Get: stream}),
		),
	}
}

func enum(values ...any) *openapi3.Schema {
	return openapi3.NewStringSchema().WithEnum(values...)
}

func openAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specOnce.Do(func() {
			b, err := OpenAPI().MarshalJSON()
			if err != nil {
				logx.Log.Error().Err(err).Msg("marshal openapi")
				return
			}
			specJSON = b
		})
		if specJSON == nil {
			http.Error(w, "openapi unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(specJSON)
	}
}
