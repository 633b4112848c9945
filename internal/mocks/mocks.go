// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Timeouts() config.TimeoutsConfig {
	args := m.Called()
	return args.Get(0).(config.TimeoutsConfig)
}

func (m *MockConfig) Retry() config.RetryConfig {
	args := m.Called()
	return args.Get(0).(config.RetryConfig)
}

func (m *MockConfig) Source() config.SourceConfig {
	args := m.Called()
	return args.Get(0).(config.SourceConfig)
}

func (m *MockConfig) Target() config.TargetConfig {
	args := m.Called()
	return args.Get(0).(config.TargetConfig)
}

func (m *MockConfig) Transfer() config.TransferConfig {
	args := m.Called()
	return args.Get(0).(config.TransferConfig)
}

func (m *MockConfig) Batch() config.BatchConfig {
	args := m.Called()
	return args.Get(0).(config.BatchConfig)
}

func (m *MockConfig) Input() config.InputConfig {
	args := m.Called()
	return args.Get(0).(config.InputConfig)
}

func (m *MockConfig) Diagnostics() config.DiagnosticsConfig {
	args := m.Called()
	return args.Get(0).(config.DiagnosticsConfig)
}

// -- Checkpoint Mock --

// MockCheckpoint mocks session.Checkpoint.
type MockCheckpoint struct {
	mock.Mock
}

func (m *MockCheckpoint) Await(ctx context.Context, prompt string) error {
	args := m.Called(ctx, prompt)
	return args.Error(0)
}

// -- Result Sink Mock --

// MockResultSink mocks orchestrator.ResultSink.
type MockResultSink struct {
	mock.Mock
}

func (m *MockResultSink) SaveResult(ctx context.Context, result schemas.BatchResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultSink) SaveSummary(ctx context.Context, summary *schemas.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}
