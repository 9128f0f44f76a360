// Package gpgverify checks detached OpenPGP signatures over pulled
// commits and summaries. It is grounded directly on sdk/verify.go from
// the teacher: the same openpgp APIs, generalized to accept the
// keyring as a reader instead of a single hardcoded key, since this
// daemon verifies against a configured remote's key, not one baked-in
// build key.
package gpgverify

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
)

// Verifier checks detached signatures against a fixed keyring.
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier parses an armored (or binary) keyring.
func NewVerifier(keyring io.Reader) (*Verifier, error) {
	el, err := openpgp.ReadArmoredKeyRing(keyring)
	if err != nil {
		el, err = openpgp.ReadKeyRing(keyring)
		if err != nil {
			return nil, errors.Wrap(err, "gpgverify: parsing keyring")
		}
	}
	return &Verifier{keyring: el}, nil
}

// VerifyDetached verifies sig as a detached signature over signed,
// returning the signing entity on success.
func (v *Verifier) VerifyDetached(signed, sig io.Reader) (*openpgp.Entity, error) {
	entity, err := openpgp.CheckDetachedSignature(v.keyring, signed, sig)
	if err != nil {
		return nil, errors.Wrap(err, "gpgverify: signature check failed")
	}
	return entity, nil
}
