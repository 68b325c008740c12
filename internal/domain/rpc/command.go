// Package rpc runs a closed set of named commands posted by browser clients.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownCommand   = errors.New("could not locate command")
	ErrDuplicateCommand = errors.New("command already registered")
	ErrArgs             = errors.New("bad arguments")
)

// Command is one callable RPC.
type Command interface {
	Name() string
	Run(ctx context.Context, args []json.RawMessage) (interface{}, error)
}

// Registry maps command names to commands. It is filled once at startup.
type Registry struct {
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

func (r *Registry) Register(cmds ...Command) error {
	for _, c := range cmds {
		if _, ok := r.commands[c.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, c.Name())
		}
		r.commands[c.Name()] = c
	}
	return nil
}

func (r *Registry) Lookup(name string) (Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Names lists the registered commands in order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CommandFunc adapts a function to Command.
type CommandFunc struct {
	name string
	fn   func(ctx context.Context, args []json.RawMessage) (interface{}, error)
}

func NewCommand(name string, fn func(ctx context.Context, args []json.RawMessage) (interface{}, error)) CommandFunc {
	return CommandFunc{name: name, fn: fn}
}

func (c CommandFunc) Name() string { return c.name }

func (c CommandFunc) Run(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	return c.fn(ctx, args)
}

// stringArg decodes args[i] as a string.
func stringArg(args []json.RawMessage, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: expected at least %d arguments", ErrArgs, i+1)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", fmt.Errorf("%w: argument %d must be a string", ErrArgs, i+1)
	}
	return s, nil
}

// valueArg decodes args[i] as any JSON value.
func valueArg(args []json.RawMessage, i int) (interface{}, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: expected at least %d arguments", ErrArgs, i+1)
	}
	var v interface{}
	if err := json.Unmarshal(args[i], &v); err != nil {
		return nil, fmt.Errorf("%w: argument %d: %v", ErrArgs, i+1, err)
	}
	return v, nil
}
