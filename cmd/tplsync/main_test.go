package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/foxzi/tplsync/internal/apply"
)

func TestFormatResults(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]int
		want    string
	}{
		{"empty", nil, ""},
		{"single", map[string]int{"created": 2}, "created=2"},
		{"sorted", map[string]int{"updated": 1, "created": 3, "removed": 0}, "created=3 removed=0 updated=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatResults(tt.results); got != tt.want {
				t.Errorf("formatResults() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyError(t *testing.T) {
	notReviewed := &apply.ValidationError{Reason: apply.ErrNotReviewed}
	err := applyError(notReviewed)
	if !errors.Is(err, apply.ErrNotReviewed) {
		t.Errorf("applyError() lost the reason: %v", err)
	}
	if !strings.Contains(err.Error(), "submit choices first") {
		t.Errorf("applyError() = %q, want a hint", err.Error())
	}

	other := fmt.Errorf("boom")
	if got := applyError(other); got != other {
		t.Errorf("applyError() changed an unrelated error: %v", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "migrate", "sync", "compare", "preview", "apply", "cleanup", "config", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}
}
