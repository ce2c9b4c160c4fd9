package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

const (
	DebugServiceName        = "pumpkin.v1.DebugService"
	StartDebugProcedure     = "/" + DebugServiceName + "/StartDebug"
	ContinueProcedure       = "/" + DebugServiceName + "/Continue"
	StepProcedure           = "/" + DebugServiceName + "/Step"
	DebugStateProcedure     = "/" + DebugServiceName + "/State"
	SetBreakpointsProcedure = "/" + DebugServiceName + "/SetBreakpoints"
	StopDebugProcedure      = "/" + DebugServiceName + "/StopDebug"
)

// DebugService drives programs under the debugger, one request per
// resume or step.
type DebugService struct {
	cfg    *serverConfig
	debugs *DebugStore
}

// NewDebugService creates a DebugService.
func NewDebugService(cfg *serverConfig, debugs *DebugStore) *DebugService {
	return &DebugService{cfg: cfg, debugs: debugs}
}

func (s *DebugService) handlers(opts []connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		StartDebugProcedure:     connect.NewUnaryHandler(StartDebugProcedure, s.StartDebug, opts...),
		ContinueProcedure:       connect.NewUnaryHandler(ContinueProcedure, s.Continue, opts...),
		StepProcedure:           connect.NewUnaryHandler(StepProcedure, s.Step, opts...),
		DebugStateProcedure:     connect.NewUnaryHandler(DebugStateProcedure, s.State, opts...),
		SetBreakpointsProcedure: connect.NewUnaryHandler(SetBreakpointsProcedure, s.SetBreakpoints, opts...),
		StopDebugProcedure:      connect.NewUnaryHandler(StopDebugProcedure, s.StopDebug, opts...),
	}
}

// StartDebug compiles a program and pauses it before its first instruction.
func (s *DebugService) StartDebug(
	ctx context.Context,
	req *connect.Request[StartDebugRequest],
) (*connect.Response[DebugStateMessage], error) {
	out, err := compileProgram(req.Msg.Program)
	if err != nil {
		return nil, err
	}
	if out.err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, out.err)
	}

	vmOpts := []bytecode.Option{bytecode.WithLimits(s.cfg.effectiveLimits(req.Msg.Limits))}
	if len(s.cfg.modules) > 0 {
		vmOpts = append(vmOpts, bytecode.WithModules(s.cfg.modules))
	}
	dbg := bytecode.NewDebugger(bytecode.New(out.fn, bytecode.NewEnvironment(nil), vmOpts...))
	for _, line := range req.Msg.Breakpoints {
		if err := dbg.SetBreakpoint(line); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}

	run := s.debugs.Create(dbg)
	log.Infof("started debug run %s", run.id)
	result, err := run.worker.Do(ctx, func() interface{} {
		return stateMessage(run)
	})
	if err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(result.(*DebugStateMessage)), nil
}

// Continue resumes until a breakpoint, the end of the program, or an error.
func (s *DebugService) Continue(
	ctx context.Context,
	req *connect.Request[DebugRequest],
) (*connect.Response[DebugStateMessage], error) {
	return s.advance(ctx, req.Msg.DebugID, (*bytecode.Debugger).Resume)
}

// Step executes one instruction.
func (s *DebugService) Step(
	ctx context.Context,
	req *connect.Request[DebugRequest],
) (*connect.Response[DebugStateMessage], error) {
	return s.advance(ctx, req.Msg.DebugID, (*bytecode.Debugger).Step)
}

func (s *DebugService) advance(
	ctx context.Context,
	id string,
	move func(*bytecode.Debugger) bytecode.StopReason,
) (*connect.Response[DebugStateMessage], error) {
	run, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	result, err := run.worker.Do(ctx, func() interface{} {
		run.last = move(run.debugger)
		run.stopped = true
		return stateMessage(run)
	})
	if err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(result.(*DebugStateMessage)), nil
}

// State reports the paused program without advancing it.
func (s *DebugService) State(
	ctx context.Context,
	req *connect.Request[DebugRequest],
) (*connect.Response[DebugStateMessage], error) {
	run, err := s.lookup(req.Msg.DebugID)
	if err != nil {
		return nil, err
	}
	result, err := run.worker.Do(ctx, func() interface{} {
		return stateMessage(run)
	})
	if err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(result.(*DebugStateMessage)), nil
}

// SetBreakpoints replaces the breakpoint set.
func (s *DebugService) SetBreakpoints(
	ctx context.Context,
	req *connect.Request[BreakpointsRequest],
) (*connect.Response[DebugStateMessage], error) {
	run, err := s.lookup(req.Msg.DebugID)
	if err != nil {
		return nil, err
	}
	result, err := run.worker.Do(ctx, func() interface{} {
		for _, line := range req.Msg.Lines {
			if line < 1 {
				return fmt.Errorf("invalid breakpoint line %d", line)
			}
		}
		run.debugger.ClearBreakpoints()
		for _, line := range req.Msg.Lines {
			run.debugger.SetBreakpoint(line)
		}
		return stateMessage(run)
	})
	if err != nil {
		return nil, workerError(err)
	}
	if err, ok := result.(error); ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(result.(*DebugStateMessage)), nil
}

// StopDebug discards a debug run.
func (s *DebugService) StopDebug(
	ctx context.Context,
	req *connect.Request[DebugRequest],
) (*connect.Response[Empty], error) {
	if req.Msg.DebugID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("debug_id is required"))
	}
	if !s.debugs.Release(req.Msg.DebugID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("debug run %q not found", req.Msg.DebugID))
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *DebugService) lookup(id string) (*debugRun, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("debug_id is required"))
	}
	run, ok := s.debugs.Lookup(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("debug run %q not found", id))
	}
	return run, nil
}

// stateMessage snapshots a run. Must be called on the run's worker.
func stateMessage(run *debugRun) *DebugStateMessage {
	d := run.debugger
	state := d.State()
	msg := &DebugStateMessage{
		DebugID:     run.id,
		Line:        state.Line,
		IP:          state.IP,
		Function:    state.Function,
		Stack:       state.Stack,
		Output:      d.VM().Output(),
		Running:     state.Running,
		Breakpoints: d.Breakpoints(),
	}
	if msg.Stack == nil {
		msg.Stack = []string{}
	}
	if run.stopped {
		msg.Stop = run.last.Kind.String()
		if run.last.Kind == bytecode.StopBreakpoint {
			msg.Line = run.last.Line
		}
		if run.last.Kind == bytecode.StopHalted {
			v := run.last.Value
			msg.Value = &v
		}
		if run.last.Err != nil {
			msg.Error = runtime.AsError(run.last.Err)
		}
	}
	return msg
}
