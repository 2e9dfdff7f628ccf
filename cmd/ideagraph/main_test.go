package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitErrorCarriesCode(t *testing.T) {
	err := partialErr(fmt.Errorf("3 messages failed"))

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitPartial, ee.code)
	assert.Equal(t, "3 messages failed", ee.Error())

	var ce *exitError
	require.True(t, errors.As(configErr(fmt.Errorf("bad config")), &ce))
	assert.Equal(t, exitConfig, ce.code)
}

func TestBuildPollerRejectsUnknownSource(t *testing.T) {
	_, _, err := buildPoller(&app{}, nil, nil, "slack")

	require.Error(t, err)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitConfig, ee.code)
	assert.Contains(t, err.Error(), "slack")
}

func TestRootCommandRegistersSurface(t *testing.T) {
	root := newRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"serve", "poll", "sync-github", "push-task", "ask",
		"cleanup-tasks", "cleanup-tags", "sync-tags",
		"analyze-logs", "analyze-milestone",
	} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
