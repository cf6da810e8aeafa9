// Package opaqueclient runs the client half of the registration and login
// exchanges: blinding the phrase, finalizing the registration record, and
// deriving the session/export keys locally. The phrase never leaves the
// calling process in the clear.
//
// A Flow is single-use: one instance per registration or login run.
package opaqueclient

import (
	"fmt"

	"github.com/bytemare/opaque"
)

// Flow wraps one protocol run for a fixed client/server identity pair.
type Flow struct {
	client         *opaque.Client
	clientIdentity []byte
	serverIdentity []byte
}

// NewFlow builds a protocol run against the given configuration. conf must
// match the server's configuration or every exchange will fail.
func NewFlow(conf *opaque.Configuration, clientIdentity, serverIdentity []byte) (*Flow, error) {
	if conf == nil {
		conf = opaque.DefaultConfiguration()
	}
	client, err := conf.Client()
	if err != nil {
		return nil, fmt.Errorf("building protocol client: %w", err)
	}
	return &Flow{
		client:         client,
		clientIdentity: clientIdentity,
		serverIdentity: serverIdentity,
	}, nil
}

// RegistrationInit blinds the phrase and returns the serialized
// registration request for the server.
//
// The opaque client keeps a reference to the phrase slice internally, so
// the caller must not wipe it until the flow is finished.
func (f *Flow) RegistrationInit(phrase []byte) []byte {
	return f.client.RegistrationInit(phrase).Serialize()
}

// RegistrationFinalize consumes the server's registration response and
// produces the registration record (to be stored server-side as the
// verifier) plus the export key, which only the client ever sees.
func (f *Flow) RegistrationFinalize(response []byte) (record, exportKey []byte, err error) {
	resp, err := f.client.Deserialize.RegistrationResponse(response)
	if err != nil {
		return nil, nil, fmt.Errorf("deserializing registration response: %w", err)
	}

	rec, exportKey := f.client.RegistrationFinalize(resp, opaque.ClientRegistrationFinalizeOptions{
		ClientIdentity: f.clientIdentity,
		ServerIdentity: f.serverIdentity,
	})

	return rec.Serialize(), exportKey, nil
}

// LoginInit blinds the phrase and returns the serialized credential
// request (KE1).
func (f *Flow) LoginInit(phrase []byte) []byte {
	return f.client.LoginInit(phrase).Serialize()
}

// LoginFinish consumes the server's credential response (KE2) and returns
// the serialized confirmation (KE3) plus the export key. It fails when the
// phrase does not match the registered one; the failure carries no detail
// beyond that.
func (f *Flow) LoginFinish(ke2 []byte) (ke3, exportKey []byte, err error) {
	resp, err := f.client.Deserialize.KE2(ke2)
	if err != nil {
		return nil, nil, fmt.Errorf("deserializing credential response: %w", err)
	}

	ke3m, exportKey, err := f.client.LoginFinish(resp, opaque.ClientLoginFinishOptions{
		ClientIdentity: f.clientIdentity,
		ServerIdentity: f.serverIdentity,
	})
	if err != nil {
		return nil, nil, err
	}

	return ke3m.Serialize(), exportKey, nil
}

// SessionKey returns the key derived during a completed login flow.
func (f *Flow) SessionKey() []byte {
	return f.client.SessionKey()
}
