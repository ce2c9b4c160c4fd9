package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/pumpkin/pkg/ast"
	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

// Procedure paths of the pumpkin.v1 services.
const (
	ExecutionServiceName = "pumpkin.v1.ExecutionService"
	ExecuteProcedure     = "/" + ExecutionServiceName + "/Execute"
	CheckProcedure       = "/" + ExecutionServiceName + "/Check"
	DisassembleProcedure = "/" + ExecutionServiceName + "/Disassemble"
)

// ExecutionService runs, checks and disassembles one-shot programs. Every
// Execute gets a fresh global environment.
type ExecutionService struct {
	cfg *serverConfig
}

// NewExecutionService creates an ExecutionService.
func NewExecutionService(cfg *serverConfig) *ExecutionService {
	return &ExecutionService{cfg: cfg}
}

func (s *ExecutionService) handlers(opts []connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		ExecuteProcedure:     connect.NewUnaryHandler(ExecuteProcedure, s.Execute, opts...),
		CheckProcedure:       connect.NewUnaryHandler(CheckProcedure, s.Check, opts...),
		DisassembleProcedure: connect.NewUnaryHandler(DisassembleProcedure, s.Disassemble, opts...),
	}
}

// Execute compiles and runs a program. Language failures are reported in
// the result, not as RPC errors.
func (s *ExecutionService) Execute(
	ctx context.Context,
	req *connect.Request[ExecuteRequest],
) (*connect.Response[runtime.ExecutionResult], error) {
	if len(req.Msg.Program) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("program is required"))
	}

	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	res := runtime.ExecuteJSON(ctx, req.Msg.Program, s.cfg.runtimeOptions(req.Msg.Limits)...)
	return connect.NewResponse(res), nil
}

// Check compiles a program without running it.
func (s *ExecutionService) Check(
	ctx context.Context,
	req *connect.Request[CheckRequest],
) (*connect.Response[CheckResponse], error) {
	out, err := compileProgram(req.Msg.Program)
	if err != nil {
		return nil, err
	}
	if out.err != nil {
		return connect.NewResponse(&CheckResponse{Valid: false, Error: out.err}), nil
	}
	return connect.NewResponse(&CheckResponse{Valid: true}), nil
}

// Disassemble compiles a program and returns its listing.
func (s *ExecutionService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	out, err := compileProgram(req.Msg.Program)
	if err != nil {
		return nil, err
	}
	if out.err != nil {
		return connect.NewResponse(&DisassembleResponse{Error: out.err}), nil
	}
	return connect.NewResponse(&DisassembleResponse{Listing: bytecode.DisassembleFunction(out.fn)}), nil
}

// compiled is a compilation outcome: a script, or the language error that
// prevented it.
type compiled struct {
	fn  *bytecode.Function
	err *bytecode.Error
}

// compileProgram decodes and compiles program. A missing or undecodable
// document is an RPC error; a compile error is part of the outcome.
func compileProgram(program []byte) (*compiled, error) {
	if len(program) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("program is required"))
	}
	prog, err := ast.ParseBytes(program)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("JSON Parse Error: %w", err))
	}
	fn, err := bytecode.Compile(prog)
	if err != nil {
		return &compiled{err: runtime.AsError(err)}, nil
	}
	return &compiled{fn: fn}, nil
}
