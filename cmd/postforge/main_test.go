package main

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hyperifyio/postforge/internal/apperr"
)

func TestSplitList(t *testing.T) {
	got := splitList(" twitter, ,linkedin,")
	if !reflect.DeepEqual(got, []string{"twitter", "linkedin"}) {
		t.Fatalf("got %v", got)
	}
	if splitList("") != nil {
		t.Fatal("empty input should give nil")
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(apperr.E(apperr.DailyLimitExceeded, "limit")); got != 2 {
		t.Fatalf("quota exit = %d", got)
	}
	if got := exitCode(apperr.E(apperr.InvalidRequest, "bad")); got != 2 {
		t.Fatalf("invalid exit = %d", got)
	}
	if got := exitCode(errors.New("db down")); got != 1 {
		t.Fatalf("internal exit = %d", got)
	}
}

func TestOverride(t *testing.T) {
	v := "file"
	override(&v, "  ")
	if v != "file" {
		t.Fatalf("blank flag must not override: %q", v)
	}
	override(&v, "flag")
	if v != "flag" {
		t.Fatalf("got %q", v)
	}
}
