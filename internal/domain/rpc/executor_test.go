package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func raw(t *testing.T, vals ...interface{}) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = b
	}
	return out
}

func echoCommand() Command {
	return NewCommand("echo", func(_ context.Context, args []json.RawMessage) (interface{}, error) {
		return stringArg(args, 0)
	})
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoCommand()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(echoCommand()); !errors.Is(err, ErrDuplicateCommand) {
		t.Errorf("expected ErrDuplicateCommand, got %v", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "echo" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestExecutor_Execute(t *testing.T) {
	r := NewRegistry()
	r.Register(
		echoCommand(),
		NewCommand("fails", func(context.Context, []json.RawMessage) (interface{}, error) {
			return nil, errors.New("no such cde")
		}),
		NewCommand("panics", func(context.Context, []json.RawMessage) (interface{}, error) {
			var m map[string]int
			m["boom"] = 1
			return nil, nil
		}),
	)
	var logs bytes.Buffer
	x := NewExecutor(r, zerolog.New(&logs))
	ctx := context.Background()

	tests := []struct {
		name       string
		req        Request
		wantStatus string
		wantResult interface{}
		wantError  string
	}{
		{"success", Request{Command: "echo", Args: raw(t, "hi")}, StatusSuccess, "hi", ""},
		{"unknown", Request{Command: "nope"}, StatusFail, nil, "could not locate command: nope"},
		{"command error", Request{Command: "fails"}, StatusFail, nil, "no such cde"},
		{"bad args", Request{Command: "echo", Args: raw(t, 3)}, StatusFail, nil, "bad arguments: argument 1 must be a string"},
		{"missing args", Request{Command: "echo"}, StatusFail, nil, "bad arguments: expected at least 1 arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := x.Execute(ctx, tt.req)
			if resp.Status != tt.wantStatus || resp.Error != tt.wantError {
				t.Errorf("got %+v", resp)
			}
			if tt.wantResult != nil && resp.Result != tt.wantResult {
				t.Errorf("expected result %v, got %v", tt.wantResult, resp.Result)
			}
		})
	}

	resp := x.Execute(ctx, Request{Command: "panics"})
	if resp.Status != StatusFail || !strings.Contains(resp.Error, "panics") {
		t.Errorf("expected recovered failure, got %+v", resp)
	}
	if !strings.Contains(logs.String(), `"rpc_command":"panics"`) || !strings.Contains(logs.String(), "rpc command panicked") {
		t.Errorf("expected panic to be logged, got %s", logs.String())
	}
	if n := strings.Count(logs.String(), `"message":"rpc call"`); n != 6 {
		t.Errorf("expected every call logged, got %d", n)
	}
}
