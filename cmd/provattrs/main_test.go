package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/provattrs/internal/events"
	"github.com/alfredjeanlab/provattrs/internal/model"
)

func TestProfiles_SaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := ProfilesConfig{
		Active: "prod",
		Profiles: map[string]Profile{
			"prod":  {DatabaseURL: "postgres://u:secret@db/prov", NATSURL: "nats://prod:4222", Timezone: "Europe/Zurich"},
			"local": {DatabaseURL: "postgres://localhost/prov"},
		},
	}
	if err := saveProfiles(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := loadProfiles()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "prod" || got.Profiles["prod"] != in.Profiles["prod"] {
		t.Errorf("loaded %+v", got)
	}

	path, _ := profilesPath()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %04o, want 0600", info.Mode().Perm())
	}
	if filepath.Base(path) != "profiles.toml" {
		t.Errorf("path = %s", path)
	}
}

func TestResolveProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p, err := resolveProfile("")
	if err != nil || p != (Profile{}) {
		t.Fatalf("no profiles: got %+v, %v", p, err)
	}

	_ = saveProfiles(ProfilesConfig{
		Active:   "a",
		Profiles: map[string]Profile{"a": {DatabaseURL: "postgres://a"}, "b": {DatabaseURL: "postgres://b"}},
	})
	if p, _ := resolveProfile(""); p.DatabaseURL != "postgres://a" {
		t.Errorf("active profile = %+v", p)
	}
	if p, _ := resolveProfile("b"); p.DatabaseURL != "postgres://b" {
		t.Errorf("named profile = %+v", p)
	}
	if _, err := resolveProfile("missing"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestProfileApply(t *testing.T) {
	t.Setenv("PROVATTRS_DATABASE_URL", "postgres://env")
	t.Setenv("PROVATTRS_TIMEZONE", "")

	p := Profile{DatabaseURL: "postgres://profile", Timezone: "Asia/Tokyo"}
	p.apply(false)
	if got := os.Getenv("PROVATTRS_DATABASE_URL"); got != "postgres://env" {
		t.Errorf("implicit profile overrode env: %q", got)
	}
	if got := os.Getenv("PROVATTRS_TIMEZONE"); got != "Asia/Tokyo" {
		t.Errorf("TIMEZONE = %q", got)
	}

	p.apply(true)
	if got := os.Getenv("PROVATTRS_DATABASE_URL"); got != "postgres://profile" {
		t.Errorf("explicit profile did not override env: %q", got)
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("postgres://u:secret@db/prov"); strings.Contains(got, "secret") {
		t.Errorf("password not redacted: %q", got)
	}
	if got := redactURL("postgres://localhost/prov"); got != "postgres://localhost/prov" {
		t.Errorf("redactURL = %q", got)
	}
}

func TestParseValue(t *testing.T) {
	v, err := parseValue(`{"a":[1,2.5,"2024-01-02T03:04:05.000000+00:00"]}`, false)
	if err != nil {
		t.Fatalf("parseValue: %v", err)
	}
	l := v.(model.Dict)["a"].(model.List)
	if l[0] != model.Int(1) || l[1] != model.Float(2.5) {
		t.Errorf("parsed = %#v", v)
	}
	if _, ok := l[2].(model.Date); !ok {
		t.Errorf("expected date, got %#v", l[2])
	}

	if v, _ := parseValue("hello world", true); v != model.Text("hello world") {
		t.Errorf("text value = %#v", v)
	}
	if _, err := parseValue("hello world", false); err == nil {
		t.Error("expected error for non-JSON value")
	}
}

func TestPrintValues(t *testing.T) {
	var buf bytes.Buffer
	values := map[string]model.Value{"b": model.List{model.Int(1)}, "a": model.Float(2)}
	if err := printValues(&buf, values); err != nil {
		t.Fatalf("printValues: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "2.0") || !strings.Contains(lines[2], "[1]") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintEvents(t *testing.T) {
	ch := make(chan events.Message, 2)
	ch <- events.Message{Subject: "attrs.value.set", Data: []byte(`{"key":"x"}`)}
	close(ch)

	var buf bytes.Buffer
	if err := printEvents(context.Background(), &buf, ch); err != nil {
		t.Fatalf("printEvents: %v", err)
	}
	if !strings.Contains(buf.String(), "attrs.value.set") || !strings.Contains(buf.String(), `{"key":"x"}`) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseNodeID(t *testing.T) {
	if id, err := parseNodeID("42"); err != nil || id != 42 {
		t.Errorf("parseNodeID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-1", "x"} {
		if _, err := parseNodeID(bad); err == nil {
			t.Errorf("parseNodeID(%q) should fail", bad)
		}
	}
}
