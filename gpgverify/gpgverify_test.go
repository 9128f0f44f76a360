package gpgverify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
)

func generateKeyring(t *testing.T) (openpgp.EntityList, string) {
	t.Helper()
	entity, err := openpgp.NewEntity("test", "", "test@example.com", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	return openpgp.EntityList{entity}, buf.String()
}

func TestVerifyDetachedRoundTrip(t *testing.T) {
	el, pub := generateKeyring(t)
	data := strings.NewReader("commit-bytes-to-sign")

	var sigBuf bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sigBuf, el[0], strings.NewReader("commit-bytes-to-sign"), nil))

	v, err := NewVerifier(strings.NewReader(pub))
	require.NoError(t, err)

	_, err = v.VerifyDetached(data, bytes.NewReader(sigBuf.Bytes()))
	require.NoError(t, err)
}

func TestVerifyDetachedRejectsTamperedData(t *testing.T) {
	el, pub := generateKeyring(t)

	var sigBuf bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sigBuf, el[0], strings.NewReader("original"), nil))

	v, err := NewVerifier(strings.NewReader(pub))
	require.NoError(t, err)

	_, err = v.VerifyDetached(strings.NewReader("tampered"), bytes.NewReader(sigBuf.Bytes()))
	require.Error(t, err)
}
