package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer produced no Transport.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, and wrapped into the result of any exchange
	// attempted afterwards.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrTransport marks an exchange whose write or read failed at the
	// transport level. The response is unusable.
	ErrTransport = errors.New("transport failure")

	// ErrDecode marks an exchange whose response bytes are not valid text.
	// The response is unusable.
	ErrDecode = errors.New("response is not valid text")

	// ErrConfiguration is returned by Configure when a command in the
	// sequence did not succeed.
	ErrConfiguration = errors.New("configuration failed")

	// ErrRegistrationTimeout is returned by AwaitRegistration when the
	// attempt budget ran out without an LTE attachment.
	ErrRegistrationTimeout = errors.New("network registration timed out")

	// ErrProbeStage marks a probe stage that did not produce the expected
	// response. Later stages still run.
	ErrProbeStage = errors.New("probe stage failed")
)
