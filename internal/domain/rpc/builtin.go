package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rdrf/rdrf/internal/domain/registry"
)

// Definitions is the registry lookup the built-in commands need.
type Definitions interface {
	ValidateValue(ctx context.Context, cdeCode string, value interface{}) ([]string, error)
	PermittedValues(ctx context.Context, groupCode string) ([]*registry.PermittedValue, error)
	Questionnaire(ctx context.Context, registryCode string) (*registry.RegistryForm, error)
}

// PatientChecker answers duplicate-name checks.
type PatientChecker interface {
	PatientExists(ctx context.Context, familyName, givenNames string, workingGroupID uuid.UUID) (bool, error)
}

// Builtins returns the standard command set.
func Builtins(defs Definitions, patients PatientChecker) []Command {
	return []Command{
		NewCommand("validate_cde", func(ctx context.Context, args []json.RawMessage) (interface{}, error) {
			msgs, err := cdeErrors(ctx, defs, args)
			if err != nil {
				return nil, err
			}
			return len(msgs) == 0, nil
		}),
		NewCommand("cde_errors", func(ctx context.Context, args []json.RawMessage) (interface{}, error) {
			msgs, err := cdeErrors(ctx, defs, args)
			if err != nil {
				return nil, err
			}
			if msgs == nil {
				msgs = []string{}
			}
			return msgs, nil
		}),
		NewCommand("permitted_values", func(ctx context.Context, args []json.RawMessage) (interface{}, error) {
			group, err := stringArg(args, 0)
			if err != nil {
				return nil, err
			}
			return defs.PermittedValues(ctx, group)
		}),
		NewCommand("questionnaire_form", func(ctx context.Context, args []json.RawMessage) (interface{}, error) {
			code, err := stringArg(args, 0)
			if err != nil {
				return nil, err
			}
			form, err := defs.Questionnaire(ctx, code)
			if err != nil {
				return nil, err
			}
			return form.Name, nil
		}),
		NewCommand("patient_exists", func(ctx context.Context, args []json.RawMessage) (interface{}, error) {
			family, err := stringArg(args, 0)
			if err != nil {
				return nil, err
			}
			given, err := stringArg(args, 1)
			if err != nil {
				return nil, err
			}
			wg, err := stringArg(args, 2)
			if err != nil {
				return nil, err
			}
			wgID, err := uuid.Parse(wg)
			if err != nil {
				return nil, fmt.Errorf("%w: working group id %q", ErrArgs, wg)
			}
			return patients.PatientExists(ctx, family, given, wgID)
		}),
	}
}

func cdeErrors(ctx context.Context, defs Definitions, args []json.RawMessage) ([]string, error) {
	code, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	value, err := valueArg(args, 1)
	if err != nil {
		return nil, err
	}
	return defs.ValidateValue(ctx, code, value)
}
