package services_test

import (
	"errors"
	"strings"
	"testing"

	"opgrid/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternal, "jobstore", "transition", "write failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"jobstore", "transition", "write failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestDetails(t *testing.T) {
	cause := errors.New("disk full")
	err := services.Wrap(services.ErrConfiguration, "config", "load", "unreadable", cause)
	details := services.Details(err)
	if details.Kind != services.KindConfiguration {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Operation != "load" || details.Message != "unreadable" {
		t.Fatalf("unexpected details %+v", details)
	}
	if !errors.Is(details.Cause, cause) {
		t.Fatalf("expected cause to be preserved, got %v", details.Cause)
	}

	plain := services.Details(errors.New("plain"))
	if plain.Kind != services.KindUnknown || plain.Message != "plain" {
		t.Fatalf("unexpected plain details %+v", plain)
	}
}

func TestClassify(t *testing.T) {
	cases := map[error]services.Kind{
		nil: services.KindUnknown,
		services.Wrap(services.ErrValidation, "params", "", "", nil): services.KindValidation,
		services.Wrap(services.ErrNotFound, "schema", "", "", nil):   services.KindNotFound,
		services.Wrap(services.ErrTransient, "group", "", "", nil):   services.KindTransient,
		errors.New("other"): services.KindUnknown,
	}
	for err, want := range cases {
		if got := services.Classify(err); got != want {
			t.Fatalf("Classify(%v) = %q, want %q", err, got, want)
		}
	}
}
