package signing

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := []byte("recipient signs the payment terms")
	sig := Sign(priv, msg)
	require.NoError(t, Verify(priv.PubKey(), msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	sig := Sign(priv, []byte("original"))
	require.Error(t, Verify(priv.PubKey(), []byte("tampered"), sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := []byte("recipient signs the payment terms")
	sig := Sign(priv, msg)
	require.Error(t, Verify(other.PubKey(), msg, sig))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	require.Error(t, Verify(priv.PubKey(), []byte("msg"), "not-hex"))
}
