package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetGetRemove(t *testing.T) {
	s := New()

	s.Set("srv1", "#Channel", "mykey")
	key, ok := s.Get("srv1", "#channel")
	assert.True(t, ok)
	assert.Equal(t, "mykey", key)

	s.Set("srv1", "#Channel", "")
	_, ok = s.Get("srv1", "#channel")
	assert.False(t, ok)
}

func TestCBCMarkerStrip(t *testing.T) {
	s := New()
	s.Set("srv1", "bob", "cbc:rawkey")

	raw, cbc, ok := s.RawKey("srv1", "bob")
	assert.True(t, ok)
	assert.True(t, cbc)
	assert.Equal(t, "rawkey", raw)
}

func TestChangeNotification(t *testing.T) {
	s := New()

	var gotServer, gotTarget string
	var gotHasKey bool
	s.OnChange(func(serverID, target string, hasKey bool) {
		gotServer, gotTarget, gotHasKey = serverID, target, hasKey
	})

	s.Set("srv1", "alice", "k")
	assert.Equal(t, "srv1", gotServer)
	assert.Equal(t, "alice", gotTarget)
	assert.True(t, gotHasKey)

	s.Remove("srv1", "alice")
	assert.False(t, gotHasKey)
}

func TestExportLoadRoundTrip(t *testing.T) {
	s := New()
	s.Set("srv1", "#chan", "k1")
	s.Set("srv2", "bob", "cbc:k2")

	exported := s.ExportAll()

	s2 := New()
	s2.LoadAll(exported)

	raw, cbc, ok := s2.RawKey("srv2", "bob")
	assert.True(t, ok)
	assert.True(t, cbc)
	assert.Equal(t, "k2", raw)

	key, ok := s2.Get("srv1", "#chan")
	assert.True(t, ok)
	assert.Equal(t, "k1", key)
}
