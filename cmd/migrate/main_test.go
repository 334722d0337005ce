package main

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want command
	}{
		{name: "up", args: []string{"up"}, want: command{name: "up"}},
		{name: "down with path", args: []string{"-path", "/srv/migrations", "down"}, want: command{name: "down", path: "/srv/migrations"}},
		{name: "steps back", args: []string{"steps", "-2"}, want: command{name: "steps", n: -2}},
		{name: "force", args: []string{"force", "1"}, want: command{name: "force", n: 1}},
		{name: "version", args: []string{"version"}, want: command{name: "version"}},
		{name: "prune default", args: []string{"prune"}, want: command{name: "prune"}},
		{name: "prune override", args: []string{"prune", "48h"}, want: command{name: "prune", retention: 48 * time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.args, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown", args: []string{"sideways"}},
		{name: "up with operand", args: []string{"up", "3"}},
		{name: "steps zero", args: []string{"steps", "0"}},
		{name: "steps not a number", args: []string{"steps", "many"}},
		{name: "steps missing", args: []string{"steps"}},
		{name: "negative force", args: []string{"force", "-1"}},
		{name: "bad retention", args: []string{"prune", "soon"}},
		{name: "negative retention", args: []string{"prune", "-1h"}},
		{name: "unknown flag", args: []string{"-verbose", "up"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCommand(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}
