// Package ccsl provides the secure session shared by the driver and an
// engine in confidential computing mode. The driver signs method streams and
// seals data with it; the engine verifies, opens and produces execution
// digests with its own copy derived from the same secret.
package ccsl

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// TagSize is the size of an authentication tag.
	TagSize = 16

	// DigestSize is the size of an execution digest.
	DigestSize = sha256.Size

	// IVSize is the size of a data encryption IV.
	IVSize = 12

	keySize = 32
)

// ErrAuthentication is returned when a tag or a digest does not match.
var ErrAuthentication = errors.New("ccsl: authentication failed")

// IV is the initialization vector of one encrypted transfer.
type IV [IVSize]byte

// Add returns the IV n steps after iv. The low 8 bytes are treated as a
// little endian counter.
func (iv IV) Add(n uint64) IV {
	out := iv
	c := binary.LittleEndian.Uint64(out[4:])
	binary.LittleEndian.PutUint64(out[4:], c+n)

	return out
}

// A Session holds the keys of one secure channel.
type Session struct {
	lock sync.Mutex

	signAEAD  cipher.AEAD
	dataAEAD  cipher.AEAD
	digestKey []byte

	signCounter   uint64
	verifyCounter uint64
	nextIV        IV
}

// NewSession derives a session from the shared secret of a channel. Both ends
// call NewSession with the same secret and channel ID.
func NewSession(secret []byte, channelID uint32) (*Session, error) {
	if len(secret) == 0 {
		return nil, errors.New("ccsl: empty secret")
	}

	salt := make([]byte, 4)
	binary.LittleEndian.PutUint32(salt, channelID)

	kdf := hkdf.New(sha256.New, secret, salt, []byte("copyengine channel keys"))

	signKey := make([]byte, keySize)
	dataKey := make([]byte, keySize)
	digestKey := make([]byte, keySize)

	for _, k := range [][]byte{signKey, dataKey, digestKey} {
		if _, err := io.ReadFull(kdf, k); err != nil {
			return nil, fmt.Errorf("ccsl: derive key: %w", err)
		}
	}

	signAEAD, err := newGCM(signKey)
	if err != nil {
		return nil, err
	}

	dataAEAD, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}

	s := &Session{
		signAEAD:  signAEAD,
		dataAEAD:  dataAEAD,
		digestKey: digestKey,
	}

	if _, err := io.ReadFull(kdf, s.nextIV[:]); err != nil {
		return nil, fmt.Errorf("ccsl: derive iv: %w", err)
	}

	return s, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ccsl: %w", err)
	}

	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("ccsl: %w", err)
	}

	return aead, nil
}

func counterNonce(c uint64) []byte {
	nonce := make([]byte, IVSize)
	binary.LittleEndian.PutUint64(nonce[4:], c)

	return nonce
}

// Sign returns the authentication tag of buf. Each call consumes one sign
// counter value, so the verifier must see the signed buffers in the same
// order.
func (s *Session) Sign(buf []byte) []byte {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.signCounter++

	return s.signAEAD.Seal(nil, counterNonce(s.signCounter), nil, buf)
}

// Verify checks the tag of the next signed buffer.
func (s *Session) Verify(buf, tag []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.verifyCounter++

	_, err := s.signAEAD.Open(nil, counterNonce(s.verifyCounter), tag, buf)
	if err != nil {
		return ErrAuthentication
	}

	return nil
}

// ReserveIVs reserves n consecutive IVs and returns the first one.
func (s *Session) ReserveIVs(n uint64) IV {
	s.lock.Lock()
	defer s.lock.Unlock()

	iv := s.nextIV
	s.nextIV = s.nextIV.Add(n)

	return iv
}

// Seal encrypts plaintext with iv and returns the ciphertext and its tag.
func (s *Session) Seal(iv IV, plaintext []byte) (ciphertext, tag []byte) {
	out := s.dataAEAD.Seal(nil, iv[:], plaintext, nil)
	n := len(out) - TagSize

	return out[:n], out[n:]
}

// Open decrypts ciphertext sealed with iv and checks its tag.
func (s *Session) Open(iv IV, ciphertext, tag []byte) ([]byte, error) {
	in := make([]byte, 0, len(ciphertext)+len(tag))
	in = append(in, ciphertext...)
	in = append(in, tag...)

	plaintext, err := s.dataAEAD.Open(nil, iv[:], in, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}

// Digest returns the execution digest of an executed method stream.
func (s *Session) Digest(buf []byte) []byte {
	h := hmac.New(sha256.New, s.digestKey)
	h.Write(buf)

	return h.Sum(nil)
}

// VerifyDigest checks an execution digest produced by the other end.
func (s *Session) VerifyDigest(buf, digest []byte) error {
	if !hmac.Equal(s.Digest(buf), digest) {
		return ErrAuthentication
	}

	return nil
}
