package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/rdrf/rdrf/internal/config"
	"github.com/rdrf/rdrf/internal/platform/blobstore"
	"github.com/rdrf/rdrf/internal/platform/cache"
	"github.com/rdrf/rdrf/internal/platform/db"
)

func TestNewLogger_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf)
	logger.Info().Msg("hello")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Errorf("expected JSON log line, got %q", buf.String())
	}
}

func TestNewLogger_ConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("development", &buf)
	logger.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected console log line, got %q", buf.String())
	}
}

func TestJWTConfig(t *testing.T) {
	cfg := &config.Config{AuthIssuer: "https://id.example.org", AuthAudience: "registry"}
	jc := jwtConfig(cfg)
	if jc.Issuer != cfg.AuthIssuer || jc.Audience != "registry" || jc.SigningKey != nil {
		t.Errorf("unexpected jwt config %+v", jc)
	}

	cfg.AuthSigningKey = "secret"
	if jc := jwtConfig(cfg); string(jc.SigningKey) != "secret" {
		t.Errorf("expected signing key, got %q", jc.SigningKey)
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, "site_default", []db.MigrationStatus{
		{Version: 1, Name: "registry_definitions", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "patients"},
	})
	out := buf.String()
	if !strings.Contains(out, "Migration status for schema: site_default") {
		t.Errorf("missing header: %s", out)
	}
	if !strings.Contains(out, "applied    2024-03-01 09:30:00") {
		t.Errorf("missing applied row: %s", out)
	}
	if !strings.Contains(out, "patients") || !strings.Contains(out, "pending") {
		t.Errorf("missing pending row: %s", out)
	}
}

func TestNewBackends_InMemoryDefaults(t *testing.T) {
	cfg := &config.Config{StorageBackend: "memory", EventsBackend: "none", DefaultSite: "default"}
	b, err := newBackends(context.Background(), cfg, newLogger("production", &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.close()

	if _, ok := b.cache.(*cache.Memory); !ok {
		t.Errorf("expected memory cache, got %T", b.cache)
	}
	if _, ok := b.blobs.(*blobstore.MemoryStore); !ok {
		t.Errorf("expected memory blob store, got %T", b.blobs)
	}
	if b.events == nil {
		t.Error("expected an events publisher")
	}
}

func TestNewBackends_RedisPrefixIsSiteNeutral(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{StorageBackend: "memory", EventsBackend: "none", DefaultSite: "default", RedisURL: "redis://" + mr.Addr()}
	b, err := newBackends(context.Background(), cfg, newLogger("production", &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.close()

	if err := b.cache.Set(context.Background(), "formdef:dm1:f-1", "x", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "rdrf:formdef:dm1:f-1" {
		t.Errorf("expected site-neutral prefix, got %v", keys)
	}
}

func TestNewBackends_UnknownEventsBackend(t *testing.T) {
	cfg := &config.Config{StorageBackend: "memory", EventsBackend: "pigeon"}
	if _, err := newBackends(context.Background(), cfg, newLogger("production", &bytes.Buffer{})); err == nil {
		t.Error("expected error for unknown events backend")
	}
}

func TestRPCCommands(t *testing.T) {
	commands, err := rpcCommands(&services{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"cde_errors", "patient_exists", "permitted_values", "questionnaire_form", "validate_cde"}
	got := commands.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCreateReviewCmd_Flags(t *testing.T) {
	cmd := createReviewCmd()
	if err := cmd.ParseFlags([]string{"-r", "FH", "--review-code", "annual", "--patient-id", "42"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for flag, want := range map[string]string{"registry-code": "FH", "review-code": "annual", "patient-id": "42", "site": ""} {
		if got, _ := cmd.Flags().GetString(flag); got != want {
			t.Errorf("--%s: expected %q, got %q", flag, want, got)
		}
	}
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range []interface{ Name() string }{serveCmd(), migrateCmd(), siteCmd(), createReviewCmd()} {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "site", "create-review"} {
		if !names[want] {
			t.Errorf("missing command %s", want)
		}
	}
	sub := map[string]bool{}
	for _, c := range migrateCmd().Commands() {
		sub[c.Name()] = true
	}
	if !sub["up"] || !sub["status"] {
		t.Errorf("migrate subcommands: %v", sub)
	}
}
