package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/agentgraph/pkg/adapters/memory"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/persistence/middleware"
	"github.com/aretw0/agentgraph/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.Checkpointer, cfg middleware.EncryptionConfig) ports.Checkpointer {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return mw(next)
}

func checkpoint(threadID string, step int, state domain.State) *domain.Checkpoint {
	return &domain.Checkpoint{ThreadID: threadID, Step: step, State: state, Node: "agent", Next: domain.End}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunCheckpointerContract(t, encrypted(t, memory.New(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.New()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	original := domain.State{
		"secret":            "my-secret-sauce",
		domain.MessagesKey: []domain.Message{domain.Human("hi")},
	}
	if err := secure.Save(ctx, checkpoint("t1", 1, original)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := underlying.LoadLatest(ctx, "t1")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if val, ok := stored.State["secret"]; ok {
		t.Fatalf("Expected secret to be hidden, found: %v", val)
	}
	if _, ok := stored.State[middleware.EnvelopeKey]; !ok {
		t.Fatal("Expected envelope field in state")
	}
	if stored.Node != "agent" || stored.Step != 1 {
		t.Errorf("Expected metadata to stay readable, got node=%q step=%d", stored.Node, stored.Step)
	}

	loaded, err := secure.LoadLatest(ctx, "t1")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.State["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.State["secret"])
	}
	if msgs := loaded.State.Messages(); len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("Expected messages to round-trip, got %v", msgs)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.New()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	if err := secureOld.Save(ctx, checkpoint("rot", 1, domain.State{"data": "encrypted-with-old-key"})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secureNew := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := secureNew.LoadLatest(ctx, "rot")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.State["data"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	if err := secureNew.Save(ctx, checkpoint("rot", 2, domain.State{"data": "encrypted-with-new-key"})); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}

	if _, err := secureOld.LoadLatest(ctx, "rot"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
	if _, err := secureOld.History(ctx, "rot"); err == nil {
		t.Error("Expected history to fail when one checkpoint cannot be decrypted")
	}
}

func TestEncryptionMiddleware_RejectsPlainCheckpoint(t *testing.T) {
	underlying := memory.New()
	ctx := context.Background()
	if err := underlying.Save(ctx, checkpoint("plain", 1, domain.State{"x": 1})); err != nil {
		t.Fatal(err)
	}

	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := secure.LoadLatest(ctx, "plain"); err == nil {
		t.Error("Expected plain checkpoint to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); err == nil {
		t.Error("Expected error for invalid key size")
	}
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if err == nil {
		t.Error("Expected error for invalid fallback key size")
	}
}
