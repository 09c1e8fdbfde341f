package main

import (
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestJobWrappers_LogsRecoveredPanic(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	job := cron.NewChain(jobWrappers(zap.New(core))...).Then(cron.FuncJob(func() {
		panic("overdue sweep exploded")
	}))

	assert.NotPanics(t, job.Run)

	entries := logs.FilterMessage("panic").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "cron", entries[0].LoggerName)
	assert.Contains(t, entries[0].ContextMap()["error"], "overdue sweep exploded")
	assert.Contains(t, entries[0].ContextMap(), "stack")
}

func TestJobWrappers_LogsSkippedRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	job := cron.NewChain(jobWrappers(zap.New(core))...).Then(cron.FuncJob(func() {
		close(started)
		<-release
	}))

	go func() {
		job.Run()
		close(done)
	}()
	<-started

	job.Run()
	close(release)
	<-done

	assert.Equal(t, 1, logs.FilterMessage("skip").Len())
}
