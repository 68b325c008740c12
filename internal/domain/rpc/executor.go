package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

type Request struct {
	Command string            `json:"rpc_command"`
	Args    []json.RawMessage `json:"args"`
}

type Response struct {
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Executor runs requests against a command table and logs every call.
type Executor struct {
	registry *Registry
	logger   zerolog.Logger
}

func NewExecutor(registry *Registry, logger zerolog.Logger) *Executor {
	return &Executor{registry: registry, logger: logger.With().Str("component", "rpc").Logger()}
}

// Execute never returns an error. Failures are reported in the response.
func (x *Executor) Execute(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Error().
				Str("rpc_command", req.Command).
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("rpc command panicked")
			resp = Response{Status: StatusFail, Error: fmt.Sprintf("command %s failed: %v", req.Command, r)}
		}
		x.logger.Info().
			Str("rpc_command", req.Command).
			Interface("args", req.Args).
			Str("status", resp.Status).
			Interface("result", resp.Result).
			Str("error", resp.Error).
			Msg("rpc call")
	}()

	cmd, ok := x.registry.Lookup(req.Command)
	if !ok {
		return Response{Status: StatusFail, Error: fmt.Sprintf("%s: %s", ErrUnknownCommand, req.Command)}
	}
	result, err := cmd.Run(ctx, req.Args)
	if err != nil {
		return Response{Status: StatusFail, Error: err.Error()}
	}
	return Response{Status: StatusSuccess, Result: result}
}
