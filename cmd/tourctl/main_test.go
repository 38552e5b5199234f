package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/your-org/tourpipe/internal/app"
	"github.com/your-org/tourpipe/pkg/config"
	"github.com/your-org/tourpipe/pkg/storage/objectstore"
)

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{LogLevel: "error"},
		Storage:   config.StorageConfig{Provider: "memory", Bucket: "tours-bucket"},
		Pipeline:  config.DefaultPipeline(),
		Migration: config.MigrationConfig{LegacyPrefix: "legacy/"},
	}
}

// closeCounter records how often the CLI releases the store.
type closeCounter struct {
	objectstore.Client
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return c.Client.Close()
}

// runCLI executes tourctl against an in-memory store prepared by seed and
// checks that the components were released exactly once.
func runCLI(t *testing.T, seed func(objectstore.Client), args ...string) (string, error) {
	t.Helper()
	var tracked *closeCounter
	cc := newCommandContext()
	cc.loadConfig = func() (*config.Config, error) { return testConfig(), nil }
	cc.build = func(cfg *config.Config, _ *zap.Logger) (*app.Components, error) {
		c, err := app.Build(cfg, zap.NewNop(), nil)
		if err != nil {
			return nil, err
		}
		if seed != nil {
			seed(c.Store)
		}
		tracked = &closeCounter{Client: c.Store}
		c.Store = tracked
		return c, nil
	}

	cmd := newRootCommand(cc)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := execute(context.Background(), cmd, cc)
	if tracked != nil && tracked.closes != 1 {
		t.Fatalf("components closed %d times, want 1", tracked.closes)
	}
	return out.String(), err
}

func put(t *testing.T, store objectstore.Client, key string, data []byte) {
	t.Helper()
	if err := store.Put(context.Background(), "tours-bucket", key, data, "application/octet-stream"); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func tourZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"index.html":  "<html><head></head><body></body></html>",
		"tiles/a.jpg": "jpeg",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestProcessCommand(t *testing.T) {
	data := tourZip(t)
	out, err := runCLI(t, func(s objectstore.Client) { put(t, s, "uploads/x/Lobby Tour.zip", data) },
		"process", "uploads/x/Lobby Tour.zip")
	if err != nil {
		t.Fatalf("process: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Successfully processed tour: Lobby Tour") || !strings.Contains(out, "2 files") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestProcessCommandMissingObjectFails(t *testing.T) {
	out, err := runCLI(t, nil, "--json", "process", "uploads/x/Nope.zip")
	if err == nil || !strings.Contains(err.Error(), "failed_terminal") {
		t.Fatalf("expected terminal failure, got %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode json output %q: %v", out, err)
	}
	if body["success"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestArchiveCommandJSON(t *testing.T) {
	out, err := runCLI(t, func(s objectstore.Client) {
		put(t, s, "tours/Lobby_Tour/index.html", []byte("<html>"))
		put(t, s, "tours/Lobby_Tour/tiles/a.jpg", []byte("jpeg"))
	}, "--json", "archive", "Lobby Tour")
	if err != nil {
		t.Fatalf("archive: %v\n%s", err, out)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode json output %q: %v", out, err)
	}
	if body["success"] != true || body["archivedCount"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMigrateCommandDryRun(t *testing.T) {
	out, err := runCLI(t, func(s objectstore.Client) {
		put(t, s, "legacy/Old Lobby/index.html", []byte("<html>"))
		put(t, s, "legacy/Old Lobby/a.jpg", []byte("jpeg"))
	}, "migrate", "--dry-run", "--bucket", "tours-bucket")
	if err != nil {
		t.Fatalf("migrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Old_Lobby") || !strings.Contains(out, "Dry run: 1 tours, 2 objects would be copied") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestMigrateCommandNoLegacyData(t *testing.T) {
	out, err := runCLI(t, nil, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "No legacy tours found") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestProcessRequiresKey(t *testing.T) {
	if _, err := runCLI(t, nil, "process"); err == nil {
		t.Fatalf("expected argument error")
	}
}

func TestFailedCommandStillReleasesComponents(t *testing.T) {
	// A refused copy fails the command; runCLI checks the store is closed.
	out, err := runCLI(t, func(s objectstore.Client) {
		put(t, s, "tours/Broken/index.html", []byte("<html>"))
		s.(*objectstore.Memory).SetFault(func(op, _, _ string) error {
			if op == "copy" {
				return errors.New("copy refused")
			}
			return nil
		})
	}, "archive", "Broken")
	if err == nil || !strings.Contains(err.Error(), "not archived") {
		t.Fatalf("expected archive failure, got %v\n%s", err, out)
	}
}
