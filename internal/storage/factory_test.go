package storage

import "testing"

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("store type: got=%T want=*MemoryStore", store)
	}
}

func TestNewStoreDefault(t *testing.T) {
	store, err := NewStore("", "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("store type: got=%T want=*MemoryStore", store)
	}
}

func TestNewStoreUnknown(t *testing.T) {
	if _, err := NewStore("redis", ""); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
