//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/rdrf/rdrf/internal/domain/rpc"
)

func callRPC(t *testing.T, c *client, command string, args ...interface{}) rpc.Response {
	t.Helper()
	if args == nil {
		args = []interface{}{}
	}
	var resp rpc.Response
	decode(t, c.postJSON("/api/v1/rpc", map[string]interface{}{"rpc_command": command, "args": args}), http.StatusOK, &resp)
	return resp
}

func TestRPC_Builtins(t *testing.T) {
	c := scenario(t).loginAs(curator())
	createPatient(t, c, "Scott", "Noah")

	if resp := callRPC(t, c, "validate_cde", "CDEfhLDL", "4.2"); resp.Status != rpc.StatusSuccess || resp.Result != true {
		t.Errorf("validate_cde valid: %+v", resp)
	}
	if resp := callRPC(t, c, "validate_cde", "CDEfhLDL", "45"); resp.Result != false {
		t.Errorf("validate_cde above max: %+v", resp)
	}

	resp := callRPC(t, c, "cde_errors", "CDEfhLDL", "abc")
	msgs, _ := resp.Result.([]interface{})
	if resp.Status != rpc.StatusSuccess || len(msgs) != 1 {
		t.Errorf("cde_errors: %+v", resp)
	}

	resp = callRPC(t, c, "permitted_values", "YesNo")
	if values, _ := resp.Result.([]interface{}); len(values) != 2 {
		t.Errorf("permitted_values: %+v", resp)
	}

	wg := global.Seed.WorkingGroup.ID.String()
	if resp := callRPC(t, c, "patient_exists", "scott", "Noah", wg); resp.Result != true {
		t.Errorf("patient_exists for saved patient: %+v", resp)
	}
	if resp := callRPC(t, c, "patient_exists", "Scott", "Liam", wg); resp.Result != false {
		t.Errorf("patient_exists for unknown patient: %+v", resp)
	}

	if resp := callRPC(t, c, "questionnaire_form", "FH"); resp.Status != rpc.StatusFail {
		t.Errorf("registry without questionnaire should fail: %+v", resp)
	}
	if resp := callRPC(t, c, "format_disk"); resp.Error != "could not locate command: format_disk" {
		t.Errorf("unknown command: %+v", resp)
	}

	decode(t, c.do(http.MethodPost, "/api/v1/rpc", "application/json", nil), http.StatusBadRequest, nil)
}
