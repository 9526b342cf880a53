package mq

import (
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ProtocolVersion selects the MQTT wire revision a Client speaks.
type ProtocolVersion uint8

const (
	V3_1   ProtocolVersion = 3
	V3_1_1 ProtocolVersion = 4
)

// Will is a last-will message the broker publishes if the client
// disconnects abnormally. All fields are required together or not at all.
type Will struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// TLSOptions configures transport-level TLS validation. The engine itself
// does not dial anything; these fields exist so ConnectionSettings can carry
// and validate them for a caller-supplied transport.Transport constructor.
type TLSOptions struct {
	VerifyPeer       bool
	VerifyPeerName   bool
	AllowSelfSigned  bool
	CAFile           string
	CADir            string
	ClientCertFile   string
	ClientKeyFile    string
	ClientKeyPassphrase string
}

// ReconnectPolicy controls the optional automatic-reconnect behavior
// described as an open question in the design notes. It is off unless
// Enabled is set.
type ReconnectPolicy struct {
	Enabled       bool
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int // 0 means unlimited
}

func (r ReconnectPolicy) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.InitialDelay > 0 {
		b.InitialInterval = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		b.MaxInterval = r.MaxDelay
	}
	b.MaxElapsedTime = 0 // bounded by MaxAttempts instead, via WithMaxRetries below
	if r.MaxAttempts > 0 {
		return backoff.WithMaxRetries(b, uint64(r.MaxAttempts))
	}
	return b
}

// ConnectionSettings is the immutable configuration a session connects with.
// Zero-value timeouts are filled with the documented defaults by Validate.
type ConnectionSettings struct {
	Username string
	Password string

	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
	ResendTimeout  time.Duration
	KeepAlive      time.Duration

	Will *Will

	TLS *TLSOptions

	Reconnect ReconnectPolicy
}

// DefaultConnectionSettings returns the documented defaults: 30s connect and
// socket timeouts, 10s resend timeout, 60s keep-alive.
func DefaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		ConnectTimeout: 30 * time.Second,
		SocketTimeout:  30 * time.Second,
		ResendTimeout:  10 * time.Second,
		KeepAlive:      60 * time.Second,
	}
}

// Validate fills unset durations with defaults first, then checks timeout
// bounds, keep-alive range, reconnect attempt bounds, whitespace-only
// username/will-topic, will QoS range, and TLS file/directory existence.
// It returns a *Error with Kind KindConfigurationInvalid on any violation.
func (c *ConnectionSettings) Validate() error {
	defaults := DefaultConnectionSettings()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.SocketTimeout == 0 {
		c.SocketTimeout = defaults.SocketTimeout
	}
	if c.ResendTimeout == 0 {
		c.ResendTimeout = defaults.ResendTimeout
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = defaults.KeepAlive
	}

	if c.ConnectTimeout < time.Second || c.SocketTimeout < time.Second || c.ResendTimeout < time.Second {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "timeouts must be at least 1 second")
	}
	if c.KeepAlive < time.Second || c.KeepAlive > 65535*time.Second {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "keep_alive_interval must be in [1, 65535] seconds")
	}
	if c.Reconnect.Enabled && c.Reconnect.MaxAttempts < 0 {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "max reconnect attempts must be >= 1 when bounded")
	}
	if strings.TrimSpace(c.Username) == "" && c.Username != "" {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "username must not be whitespace-only")
	}
	if w := c.Will; w != nil {
		if strings.TrimSpace(w.Topic) == "" {
			return newErr(KindConfigurationInvalid, CodeConnectionFailed, "will topic must not be whitespace-only")
		}
		if w.QoS > ExactlyOnce {
			return newErr(KindConfigurationInvalid, CodeConnectionFailed, "will QoS must be 0, 1, or 2")
		}
	}
	if t := c.TLS; t != nil {
		if err := requireExistingFile(t.CAFile); err != nil {
			return err
		}
		if err := requireExistingDir(t.CADir); err != nil {
			return err
		}
		if err := requireExistingFile(t.ClientCertFile); err != nil {
			return err
		}
		if t.ClientKeyFile != "" && t.ClientCertFile == "" {
			return newErr(KindConfigurationInvalid, CodeConnectionFailed, "setting a client key file requires a client certificate file")
		}
		if t.ClientKeyPassphrase != "" && t.ClientKeyFile == "" {
			return newErr(KindConfigurationInvalid, CodeConnectionFailed, "setting a key passphrase requires a client key file")
		}
		if err := requireExistingFile(t.ClientKeyFile); err != nil {
			return err
		}
	}
	return nil
}

func requireExistingFile(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "file does not exist: "+path)
	}
	return nil
}

func requireExistingDir(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "directory does not exist: "+path)
	}
	return nil
}
