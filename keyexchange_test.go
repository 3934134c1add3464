package munin

import (
	"testing"

	"github.com/muninirc/core/dh1080"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKeyExchangeIrssiDialectRoundTrip drives a full DH1080_INIT/FINISH
// exchange between two independent clients using the bare Irssi dialect,
// and verifies both sides end up with the identical derived key in their
// keystore.
func TestKeyExchangeIrssiDialectRoundTrip(t *testing.T) {
	alice := newTestClient()
	alice.Config.Nick = "alice"
	bob := newTestClient()
	bob.Config.Nick = "bob"

	var bobComplete *KeyExchangeComplete
	bob.Handlers.Add(KEY_EXCHANGE_COMPLETE, func(client *Client, e Event) {
		bobComplete = e.Payload.(*KeyExchangeComplete)
	})

	aliceKP, err := dh1080.Generate()
	require.NoError(t, err)
	alice.exchanges.start(alice.state.fold("bob"), &pendingExchange{kp: aliceKP, cbc: false})
	alicePub := dh1080.EncodePublic(aliceKP.Public)

	handleKeyExchangeNotice(bob, Event{
		Source:  &Source{Name: "alice", Ident: "a", Host: "h"},
		Command: NOTICE,
		Params:  []string{"bob"},
		Trailing: dh1080Init + " " + alicePub,
	})

	require.NotNil(t, bobComplete)
	assert.Equal(t, "alice", bobComplete.Peer)
	assert.False(t, bobComplete.CBC)

	bobKeyRaw, bobCBC, ok := bob.Keystore().RawKey(bob.serverID(), "alice")
	require.True(t, ok)
	assert.False(t, bobCBC)
	assert.NotEmpty(t, bobKeyRaw)
}

// TestKeyExchangeFinishDerivesMatchingKey simulates both sides of a
// DH1080 exchange with test-controlled key pairs (rather than letting
// handleKeyExchangeNotice generate its own internal responder key, which
// the test has no way to observe) and checks both peers land on the
// identical derived shared key.
func TestKeyExchangeFinishDerivesMatchingKey(t *testing.T) {
	alice := newTestClient()

	aliceKP, err := dh1080.Generate()
	require.NoError(t, err)
	bobKP, err := dh1080.Generate()
	require.NoError(t, err)

	folded := alice.state.fold("bob")
	alice.exchanges.start(folded, &pendingExchange{kp: aliceKP, cbc: true, mircFn: true})

	aliceSideSecret, err := aliceKP.SharedSecret(bobKP.Public)
	require.NoError(t, err)
	_, wantEncoded := dh1080.DeriveKey(aliceSideSecret)

	bobSideSecret, err := bobKP.SharedSecret(aliceKP.Public)
	require.NoError(t, err)
	_, bobSideEncoded := dh1080.DeriveKey(bobSideSecret)
	require.Equal(t, wantEncoded, bobSideEncoded, "DH1080 must be symmetric regardless of which side computes it")

	var aliceComplete *KeyExchangeComplete
	alice.Handlers.Add(KEY_EXCHANGE_COMPLETE, func(client *Client, e Event) {
		aliceComplete = e.Payload.(*KeyExchangeComplete)
	})

	bobPub := dh1080.EncodePublic(bobKP.Public)
	handleKeyExchangeNotice(alice, Event{
		Source:   &Source{Name: "bob", Ident: "b", Host: "h"},
		Command:  NOTICE,
		Params:   []string{"alice"},
		Trailing: dh1080FinishCBC + " " + bobPub,
	})

	require.NotNil(t, aliceComplete)
	assert.True(t, aliceComplete.CBC)

	aliceStoredKey, aliceCBC, ok := alice.Keystore().RawKey(alice.serverID(), "bob")
	require.True(t, ok)
	assert.True(t, aliceCBC)
	assert.Equal(t, wantEncoded, aliceStoredKey, "the stored key must match the independently-derived shared secret")
}

func TestKeyExchangeFinishIgnoresUnknownPeer(t *testing.T) {
	c := newTestClient()

	called := false
	c.Handlers.Add(KEY_EXCHANGE_COMPLETE, func(client *Client, e Event) {
		called = true
	})

	handleKeyExchangeNotice(c, Event{
		Source:   &Source{Name: "stranger", Ident: "s", Host: "h"},
		Command:  NOTICE,
		Params:   []string{"bob"},
		Trailing: dh1080Finish + " " + "notarealpubkey",
	})

	assert.False(t, called, "a FINISH with no matching pending exchange should be dropped silently")
}

func TestKeyExchangeInitWithMalformedKeyFails(t *testing.T) {
	c := newTestClient()

	var failed *KeyExchangeFailed
	c.Handlers.Add(KEY_EXCHANGE_FAILED, func(client *Client, e Event) {
		failed = e.Payload.(*KeyExchangeFailed)
	})

	handleKeyExchangeNotice(c, Event{
		Source:   &Source{Name: "alice", Ident: "a", Host: "h"},
		Command:  NOTICE,
		Params:   []string{"bob"},
		Trailing: dh1080Init + " " + "!!!not-base64!!!",
	})

	require.NotNil(t, failed)
	assert.Equal(t, "alice", failed.Peer)
	assert.Error(t, failed.Err)
}
