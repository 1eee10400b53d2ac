package storage

import "testing"

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewStoreDefaultKind(t *testing.T) {
	store, err := NewStore("", t.TempDir()+"/default.db")
	if err != nil {
		t.Fatalf("new default store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	t.Cleanup(func() { _ = CloseIfSupported(store) })
	switch DefaultStoreKind() {
	case "memory", "sqlite":
	default:
		t.Fatalf("unexpected default kind: %s", DefaultStoreKind())
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}
