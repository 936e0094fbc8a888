package daemon

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"tracewatch/internal/registry"
)

// Filter keys understood by ListTraces.
const (
	FilterPIDs   = "pids"
	FilterStates = "states"
	FilterText   = "text"
)

// service implements AgentServer backed by the trace registry.
type service struct {
	reg *registry.Registry
}

func (s *service) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("pong"), nil
}

func (s *service) ListTraces(_ context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	filter, err := FilterFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	traces := s.reg.List(filter)
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(traces))}
	for _, t := range traces {
		st, err := TraceToStruct(t)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode trace %d: %v", t.ID, err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(st))
	}
	return out, nil
}

// FilterToStruct encodes a registry filter as a ListTraces request.
func FilterToStruct(f registry.ListFilter) *structpb.Struct {
	fields := make(map[string]*structpb.Value)
	if len(f.PIDs) > 0 {
		pids := make([]*structpb.Value, 0, len(f.PIDs))
		for _, pid := range f.PIDs {
			pids = append(pids, structpb.NewNumberValue(float64(pid)))
		}
		fields[FilterPIDs] = structpb.NewListValue(&structpb.ListValue{Values: pids})
	}
	if len(f.States) > 0 {
		states := make([]*structpb.Value, 0, len(f.States))
		for _, st := range f.States {
			states = append(states, structpb.NewStringValue(string(st)))
		}
		fields[FilterStates] = structpb.NewListValue(&structpb.ListValue{Values: states})
	}
	if f.TextSearch != "" {
		fields[FilterText] = structpb.NewStringValue(f.TextSearch)
	}
	return &structpb.Struct{Fields: fields}
}

// FilterFromStruct decodes a ListTraces request. A nil request lists all.
func FilterFromStruct(req *structpb.Struct) (registry.ListFilter, error) {
	var f registry.ListFilter
	if req == nil {
		return f, nil
	}
	for _, v := range req.GetFields()[FilterPIDs].GetListValue().GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue <= 0 {
			return f, fmt.Errorf("invalid pid filter %v", v.AsInterface())
		}
		f.PIDs = append(f.PIDs, int(n.NumberValue))
	}
	for _, v := range req.GetFields()[FilterStates].GetListValue().GetValues() {
		st, err := registry.ParseState(v.GetStringValue())
		if err != nil {
			return f, err
		}
		f.States = append(f.States, st)
	}
	f.TextSearch = req.GetFields()[FilterText].GetStringValue()
	return f, nil
}

// TraceToStruct flattens a trace into its wire form.
func TraceToStruct(t registry.Trace) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":          float64(t.ID),
		"pid":         float64(t.PID),
		"command":     t.Command,
		"output_path": t.OutputPath,
		"state":       string(t.State),
		"exit_code":   float64(t.ExitCode),
		"started_at":  formatTime(t.StartedAt),
		"finished_at": formatTime(t.FinishedAt),
	}
	if t.Error != "" {
		fields["error"] = t.Error
	}
	return structpb.NewStruct(fields)
}

// TraceFromStruct is the inverse of TraceToStruct.
func TraceFromStruct(s *structpb.Struct) (registry.Trace, error) {
	f := s.GetFields()
	t := registry.Trace{
		ID:         registry.TraceID(f["id"].GetNumberValue()),
		PID:        int(f["pid"].GetNumberValue()),
		Command:    f["command"].GetStringValue(),
		OutputPath: f["output_path"].GetStringValue(),
		State:      registry.State(f["state"].GetStringValue()),
		ExitCode:   int(f["exit_code"].GetNumberValue()),
		Error:      f["error"].GetStringValue(),
	}
	var err error
	if t.StartedAt, err = parseTime(f["started_at"].GetStringValue()); err != nil {
		return t, fmt.Errorf("started_at: %w", err)
	}
	if t.FinishedAt, err = parseTime(f["finished_at"].GetStringValue()); err != nil {
		return t, fmt.Errorf("finished_at: %w", err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
