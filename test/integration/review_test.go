//go:build integration

package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/rdrf/rdrf/internal/domain/patient"
	"github.com/rdrf/rdrf/internal/domain/review"
	"github.com/rdrf/rdrf/internal/platform/events"
)

func addParent(t *testing.T, c *client, p *patient.Patient, userID string) {
	t.Helper()
	body := map[string]interface{}{"family_name": p.FamilyName, "given_names": "Parent"}
	if userID != "" {
		body["user_id"] = userID
	}
	decode(t, c.postJSON("/api/v1/patients/"+p.ID.String()+"/parents", body), http.StatusCreated, nil)
}

// reviewToken pulls the t parameter out of a review link.
func reviewToken(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse review link %q: %v", link, err)
	}
	token := u.Query().Get("t")
	if token == "" {
		t.Fatalf("review link %q has no token", link)
	}
	return token
}

func TestReview_SendAndComplete(t *testing.T) {
	c := scenario(t).loginAs(curator())
	p := createPatient(t, c, "Moore", "Kai")
	sendPath := fmt.Sprintf("/api/v1/registries/FH/reviews/%s/patients/%s", global.Seed.ParentReview.ID, p.ID)

	decode(t, c.postJSON(sendPath, nil), http.StatusUnprocessableEntity, nil)

	addParent(t, c, p, "parent-kai")
	var sent map[string]string
	decode(t, c.postJSON(sendPath, nil), http.StatusCreated, &sent)
	token := reviewToken(t, sent["url"])

	reviewer := newClient(t, global.BaseURL, global.SiteID)
	var view review.ReviewView
	decode(t, reviewer.get("/reviews?t="+token), http.StatusOK, &view)
	if view.Review.Code != "annual" || len(view.Items) != 1 || len(view.PatientReview.Items) != 1 {
		t.Fatalf("unexpected review view %+v", view)
	}
	if view.PatientReview.State != review.StateCreated {
		t.Errorf("expected state C, got %s", view.PatientReview.State)
	}

	itemPath := fmt.Sprintf("/reviews/items/%s?t=%s", view.PatientReview.Items[0].ID, token)
	var item review.PatientReviewItem
	decode(t, reviewer.sendJSON(http.MethodPut, itemPath, map[string]interface{}{
		"data": map[string]interface{}{"home_phone": "08 9000 0000"},
	}), http.StatusOK, &item)
	if !item.HasChanged || item.State != review.StateInProgress {
		t.Errorf("expected changed item in progress, got %+v", item)
	}

	decode(t, reviewer.postJSON("/reviews/complete?t="+token, nil), http.StatusOK, nil)
	decode(t, reviewer.postJSON("/reviews/complete?t="+token, nil), http.StatusConflict, nil)
	decode(t, reviewer.get("/reviews?t=not-a-token"), http.StatusNotFound, nil)

	types := global.Events.Types()
	if types[len(types)-1] != events.ReviewCreated {
		t.Errorf("expected review.created last, got %v", types)
	}
}

func TestReview_CreateReviewsCommand(t *testing.T) {
	c := scenario(t).loginAs(curator())
	withParent := createPatient(t, c, "Hall", "Remy")
	addParent(t, c, withParent, "parent-remy")
	createPatient(t, c, "King", "Ola")

	var out bytes.Buffer
	err := global.withSite(context.Background(), func(ctx context.Context) error {
		return global.Reviews.CreateReviews(ctx, &out, "FH", "annual", "")
	})
	if err != nil {
		t.Fatalf("create reviews: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one line per patient, got %q", out.String())
	}
	var ok, skipped int
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "review annual patient ") && strings.Contains(line, " url = /reviews?t="):
			ok++
		case strings.HasSuffix(line, "has no associated parent"):
			skipped++
		}
	}
	if ok != 1 || skipped != 1 {
		t.Errorf("expected one review and one skip, got %q", out.String())
	}

	for _, tc := range []struct {
		registry, review, patientID, want string
	}{
		{"XX", "annual", "", "Error: registry does not exist"},
		{"FH", "", "", "Error: review code required"},
		{"FH", "missing", "", "Error: review does not exist"},
		{"FH", "annual", "7", "patient with id 7 does not exist"},
	} {
		out.Reset()
		err := global.withSite(context.Background(), func(ctx context.Context) error {
			return global.Reviews.CreateReviews(ctx, &out, tc.registry, tc.review, tc.patientID)
		})
		if !errors.Is(err, review.ErrAborted) || strings.TrimSpace(out.String()) != tc.want {
			t.Errorf("%s/%s/%s: got %v %q", tc.registry, tc.review, tc.patientID, err, out.String())
		}
	}
}
