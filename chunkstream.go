package chunkstream

import (
	"github.com/ajitpratap0/chunkstream-go/pkg/connection"
	"github.com/ajitpratap0/chunkstream-go/pkg/transform"
)

// Version represents the current version of the library
const Version = "0.1.0"

// Connection kinds
const (
	KindDuplex     = connection.KindDuplex
	KindPushStream = connection.KindPushStream
)

// Health values
const (
	HealthClosed     = connection.HealthClosed
	HealthConnecting = connection.HealthConnecting
	HealthConnected  = connection.HealthConnected
	HealthError      = connection.HealthError
)

// UnlimitedRetries disables the retry ceiling of a BackoffPolicy
const UnlimitedRetries = connection.UnlimitedRetries

// Core types
type (
	Connection     = connection.Connection
	Sender         = connection.Sender
	Config         = connection.Config
	Kind           = connection.Kind
	Health         = connection.Health
	State          = connection.State
	BackoffPolicy  = connection.BackoffPolicy
	MessageHandler = connection.MessageHandler
	Observer       = connection.Observer
)

// These exports provide direct access to the core constructors
var (
	// New creates a connection with default settings and panics on an unknown kind
	New = connection.New

	// NewConnection creates a connection from a Config
	NewConnection = connection.NewConnection

	// MustNewConnection is like NewConnection but panics on error
	MustNewConnection = connection.MustNewConnection

	// DefaultConfig returns the default Config for a kind
	DefaultConfig = connection.DefaultConfig

	// AsSender resolves the Send capability of a connection by its kind
	AsSender = connection.AsSender
)

// TextDelta returns a transformer that extracts the text at path from one
// JSON chunk.
func TextDelta(path ...string) transform.Transformer[string] {
	return transform.TextDelta(path...)
}
