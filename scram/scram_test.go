package scram

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// fakeServer independently re-derives the SCRAM-SHA-256 exchange using
// stdlib primitives directly (not this package's code) so the test
// exercises interoperability against a known (password, salt,
// iterations) vector rather than just round-tripping through itself.
type fakeServer struct {
	user       string
	password   string
	salt       []byte
	iterations int
	nonceExt   string

	clientFirstBare string
	serverFirst     string
	saltedPassword  []byte
}

func (s *fakeServer) firstResponse(clientFirst string) string {
	// clientFirst is "n,,n=user,r=cnonce"
	bare := strings.TrimPrefix(clientFirst, "n,,")
	s.clientFirstBare = bare

	parts := strings.Split(bare, ",")
	var cnonce string
	for _, p := range parts {
		if strings.HasPrefix(p, "r=") {
			cnonce = strings.TrimPrefix(p, "r=")
		}
	}

	combined := cnonce + s.nonceExt
	s.serverFirst = fmt.Sprintf("r=%s,s=%s,i=%d", combined, base64.StdEncoding.EncodeToString(s.salt), s.iterations)
	return s.serverFirst
}

func (s *fakeServer) verifyFinal(clientFinal string) (string, bool) {
	idx := strings.LastIndex(clientFinal, ",p=")
	withoutProof := clientFinal[:idx]
	proofB64 := clientFinal[idx+3:]

	proof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return "", false
	}

	s.saltedPassword = pbkdf2.Key([]byte(s.password), s.salt, s.iterations, 32, sha256.New)
	clientKey := hmacSHA256(s.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)

	authMessage := s.clientFirstBare + "," + s.serverFirst + "," + withoutProof
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))

	gotClientKey := xorBytes(proof, clientSignature)
	gotStoredKey := sha256.Sum256(gotClientKey)

	if subtle.ConstantTimeCompare(gotStoredKey[:], storedKey[:]) != 1 {
		return "", false
	}

	serverKey := hmacSHA256(s.saltedPassword, []byte("Server Key"))
	serverSignature := hmacSHA256(serverKey, []byte(authMessage))

	return "v=" + base64.StdEncoding.EncodeToString(serverSignature), true
}

func TestFullExchangeAgainstReferenceVector(t *testing.T) {
	srv := &fakeServer{
		user:       "alice",
		password:   "correcthorsebatterystaple",
		salt:       []byte("fixedsaltvalue16"),
		iterations: 4096,
		nonceExt:   "servernonceextension",
	}

	client := NewClient("alice", "correcthorsebatterystaple")

	first, err := client.FirstMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "n,,n=alice,r="))

	serverFirst := srv.firstResponse(first)

	final, err := client.HandleServerFirst(serverFirst)
	require.NoError(t, err)

	serverFinal, ok := srv.verifyFinal(final)
	require.True(t, ok, "server must accept client proof")

	err = client.HandleServerFinal(serverFinal)
	require.NoError(t, err)
	assert.Equal(t, Done, client.State())
}

func TestRejectsNonceMismatch(t *testing.T) {
	client := NewClient("alice", "pw")
	_, err := client.FirstMessage()
	require.NoError(t, err)

	_, err = client.HandleServerFirst("r=doesnotmatch,s=" + base64.StdEncoding.EncodeToString([]byte("salt")) + ",i=4096")
	assert.ErrorIs(t, err, ErrNonceMismatch)
	assert.Equal(t, Failed, client.State())
}

func TestRejectsBadServerSignature(t *testing.T) {
	srv := &fakeServer{
		user: "alice", password: "pw", salt: []byte("somesalt12345678"),
		iterations: 4096, nonceExt: "ext",
	}
	client := NewClient("alice", "pw")
	first, _ := client.FirstMessage()
	serverFirst := srv.firstResponse(first)
	final, err := client.HandleServerFirst(serverFirst)
	require.NoError(t, err)
	_, ok := srv.verifyFinal(final)
	require.True(t, ok)

	err = client.HandleServerFinal("v=" + base64.StdEncoding.EncodeToString([]byte("wrongsignature12345678901234567")))
	assert.ErrorIs(t, err, ErrServerSignature)
	assert.Equal(t, Failed, client.State())
}
