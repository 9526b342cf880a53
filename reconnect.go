package mq

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wireloop/mq/logging"
	"github.com/wireloop/mq/transport"
)

// Dialer opens a fresh Transport to the broker. RunForever calls it again
// on every reconnect attempt.
type Dialer func() (transport.Transport, error)

// RunForever drives Connect/Loop/reconnect according to
// c.settings.Reconnect, treated as an open question by the design this
// engine follows (see the design notes): the core event loop itself never
// reconnects automatically, but a caller who enables ReconnectPolicy can use
// this helper instead of calling Connect/Loop directly.
//
// It returns only when Reconnect.Enabled is false and the session ends, when
// Loop returns without error (Interrupt or the exit policy in loopOpts), when
// MaxAttempts is exhausted, or when Connect fails with a non-retryable
// configuration error.
func (c *Client) RunForever(dial Dialer, loopOpts LoopOptions) error {
	if !c.settings.Reconnect.Enabled {
		conn, err := dial()
		if err != nil {
			return wrapErr(KindConnectingToBrokerFailed, CodeSocketError, "dialing transport", err)
		}
		if err := c.Connect(conn, nil); err != nil {
			return err
		}
		return c.Loop(loopOpts)
	}

	policy := c.settings.Reconnect.backoffPolicy()
	firstAttempt := true
	for {
		if !firstAttempt {
			wait := policy.NextBackOff()
			if wait == backoff.Stop {
				return newErr(KindConnectingToBrokerFailed, CodeConnectionFailed, "reconnect attempts exhausted")
			}
			time.Sleep(wait)
		}
		firstAttempt = false

		conn, err := dial()
		if err != nil {
			c.logger.Warning("reconnect dial failed", logging.Fields{"error": err.Error()})
			continue
		}

		wasCleanSession := c.cleanSession
		err = c.Connect(conn, nil)
		if err != nil {
			if isConfigurationError(err) {
				return err
			}
			c.logger.Warning("reconnect handshake failed", logging.Fields{"error": err.Error()})
			continue
		}
		policy.Reset()

		if !wasCleanSession {
			c.resubscribeAll()
		}

		loopErr := c.Loop(loopOpts)
		if loopErr == nil {
			return nil
		}
		c.logger.Warning("session loop ended, will reconnect", logging.Fields{"error": loopErr.Error()})
	}
}

func isConfigurationError(err error) bool {
	var mqErr *Error
	if e, ok := err.(*Error); ok {
		mqErr = e
	}
	return mqErr != nil && mqErr.Kind == KindConfigurationInvalid
}

// resubscribeAll re-sends SUBSCRIBE, at its previously granted QoS, for
// every filter still registered after a reconnect that preserved the
// session's handler map (non-clean-session reconnects only; a clean session
// starts with none registered).
func (c *Client) resubscribeAll() {
	qosByFilter := make(map[string]QoS, len(c.subscriptionHandlers))
	for _, sub := range c.repo.AllSubscriptions() {
		qosByFilter[sub.Filter.String()] = QoS(sub.QoS)
	}
	for filter, handler := range c.subscriptionHandlers {
		qos := qosByFilter[filter]
		if err := c.Subscribe(filter, qos, handler); err != nil {
			c.logger.Warning("resubscribe failed", logging.Fields{"filter": filter, "error": err.Error()})
		}
	}
}
