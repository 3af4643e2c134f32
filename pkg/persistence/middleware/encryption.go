package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// EnvelopeKey is the only state field of an encrypted checkpoint.
const EnvelopeKey = "__encrypted__"

// ErrKeySize is returned for keys that are not 32 bytes.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new checkpoints. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt,
	// so keys can be rotated without rewriting old threads.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.Checkpointer
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts checkpoint state with AES-GCM. Thread id,
// step, node, next and source stay readable so listing and resume still work.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d: %w", i, ErrKeySize)
		}
	}
	return func(next ports.Checkpointer) ports.Checkpointer {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	plainText, err := domain.EncodeState(cp.State)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	envelope := *cp
	envelope.State = domain.State{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	return m.next.Save(ctx, &envelope)
}

func (m *encryptionMiddleware) LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	envelope, err := m.next.LoadLatest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	envelopes, err := m.next.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Checkpoint, len(envelopes))
	for i, e := range envelopes {
		if out[i], err = m.open(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *encryptionMiddleware) ListThreads(ctx context.Context) ([]string, error) {
	return m.next.ListThreads(ctx)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

// open fails closed: a checkpoint without an envelope is rejected.
func (m *encryptionMiddleware) open(envelope *domain.Checkpoint) (*domain.Checkpoint, error) {
	encoded, ok := envelope.State[EnvelopeKey].(string)
	if !ok {
		return nil, fmt.Errorf("checkpoint %s/%d is missing encrypted data envelope", envelope.ThreadID, envelope.Step)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	state, err := domain.DecodeState(plainText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode decrypted state: %w", err)
	}

	cp := *envelope
	cp.State = state
	return &cp, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
