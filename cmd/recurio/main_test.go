package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNextCommand_Text(t *testing.T) {
	out, err := execute(t, "next", "--anchor", "2024-06-10", "--byday", "MO,WE", "--time", "09:00", "--now", "2024-06-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-12T09:00:00Z\n", out)
}

func TestNextCommand_JSON(t *testing.T) {
	out, err := execute(t, "next", "--anchor", "2024-01-31", "--freq", "custom", "--custom", "FREQ=MONTHLY;INTERVAL=1",
		"--now", "2024-01-01T00:00:00Z", "--format", "json")
	require.NoError(t, err)

	var res nextResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "2024-03-02", res.Next)
	assert.Equal(t, "2024-01-31", res.Anchor)
}

func TestNextCommand_YAML(t *testing.T) {
	out, err := execute(t, "next", "--anchor", "2024-06-10", "--freq", "daily", "--interval", "3",
		"--now", "2024-06-01T00:00:00Z", "-f", "yaml")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, "2024-06-13", res["next"])
}

func TestNextCommand_Errors(t *testing.T) {
	_, err := execute(t, "next", "--freq", "hourly")
	assert.Error(t, err)

	_, err = execute(t, "next", "--anchor", "June 10")
	assert.Error(t, err)

	_, err = execute(t, "next", "--anchor", "2024-06-10", "--format", "xml")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown format"))
}
