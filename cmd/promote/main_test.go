package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

type exited struct{ code int }

func missingConfig(calls *int) configLoader {
	return func() (*promocfg.Config, error) {
		*calls++
		return nil, promoerr.Configurationf("promote.toml not found in this directory or any parent")
	}
}

func TestParseDoesNotLoadConfig(t *testing.T) {
	t.Parallel()
	var calls int
	var app App
	parser, err := newParser(&app, context.Background(), missingConfig(&calls))
	if err != nil {
		t.Fatal(err)
	}

	kctx, err := parser.Parse([]string{"status", "01J0000000000000000000000"})
	if err != nil {
		t.Fatal(err)
	}
	if kctx.Command() != "status <run-id>" {
		t.Errorf("Command = %q", kctx.Command())
	}
	if calls != 0 {
		t.Errorf("config loaded %d times while parsing", calls)
	}
}

func TestHelpWithoutConfig(t *testing.T) {
	t.Parallel()
	var calls int
	var out bytes.Buffer
	var app App
	parser, err := newParser(&app, context.Background(), missingConfig(&calls),
		kong.Writers(&out, &out),
		kong.Exit(func(code int) { panic(exited{code}) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			r := recover()
			if e, ok := r.(exited); !ok || e.code != 0 {
				t.Errorf("help exited with %v, want code 0", r)
			}
		}()
		_, _ = parser.Parse([]string{"--help"})
	}()

	if !strings.Contains(out.String(), "Usage: promote") {
		t.Errorf("help output = %q", out.String())
	}
	if calls != 0 {
		t.Errorf("config loaded %d times for --help", calls)
	}
}

func TestCommandLoadsConfigWhenRun(t *testing.T) {
	t.Parallel()
	var calls int
	var app App
	parser, err := newParser(&app, context.Background(), missingConfig(&calls))
	if err != nil {
		t.Fatal(err)
	}
	kctx, err := parser.Parse([]string{"status", "01J0000000000000000000000"})
	if err != nil {
		t.Fatal(err)
	}

	err = kctx.Run()
	if !errors.Is(err, promoerr.ErrConfiguration) {
		t.Errorf("Run = %v, want the configuration error", err)
	}
	if calls != 1 {
		t.Errorf("config loaded %d times, want 1", calls)
	}
}

func TestDoctorReportsMissingConfig(t *testing.T) {
	t.Parallel()
	var calls int
	var out bytes.Buffer

	ok := (&DoctorCmd{}).diagnose(context.Background(), &out, missingConfig(&calls))
	if ok {
		t.Error("diagnose passed without a config")
	}
	if !strings.Contains(out.String(), "=== promote.toml ===\n  ✗ promote.toml not found") {
		t.Errorf("output does not report the missing config:\n%s", out.String())
	}
	if strings.Contains(out.String(), "=== cdk.json ===") {
		t.Error("cdk.json checked without a config")
	}
}
