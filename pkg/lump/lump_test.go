package lump

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cuemby/hearth/pkg/herr"
)

func TestAddGetRoundTrip(t *testing.T) {
	store := NewStore(NewMemBacking())

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "short", data: []byte("hello hearth")},
		{name: "binary", data: []byte{0x00, 0xFF, 0x10, 0x00, 0xAA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := store.Add(tt.data)
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			got, err := store.Get(id)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("Get() = %v, want %v", got, tt.data)
			}
		})
	}
}

func TestAddIsIdempotent(t *testing.T) {
	store := NewStore(NewMemBacking())
	data := []byte("duplicate me")

	id1, err := store.Add(data)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	id2, err := store.Add(data)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if id1 != id2 {
		t.Errorf("Add() not idempotent: %s != %s", id1, id2)
	}
}

func TestDistinctContentDistinctIDs(t *testing.T) {
	store := NewStore(NewMemBacking())

	id1, _ := store.Add([]byte("alpha"))
	id2, _ := store.Add([]byte("bravo"))

	if id1 == id2 {
		t.Errorf("distinct content produced identical ids: %s", id1)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	store := NewStore(NewMemBacking())

	_, err := store.Get(Digest([]byte("never added")))
	if !errors.Is(err, herr.LumpNotFound) {
		t.Errorf("Get() error = %v, want herr.LumpNotFound", err)
	}
}

func TestLoanKeepsLumpReachable(t *testing.T) {
	store := NewStore(NewMemBacking())
	id, _ := store.Add([]byte("loaned"))

	loan1, err := store.Loan(id)
	if err != nil {
		t.Fatalf("Loan() error = %v", err)
	}
	loan2, err := store.Loan(id)
	if err != nil {
		t.Fatalf("Loan() error = %v", err)
	}

	loan1.Release()
	// A second release must be a no-op, not a double-decrement.
	loan1.Release()

	if _, err := store.Get(id); err != nil {
		t.Errorf("Get() after one release error = %v, want nil", err)
	}

	loan2.Release()
}

func TestLoanOnMissingLumpFails(t *testing.T) {
	store := NewStore(NewMemBacking())
	if _, err := store.Loan(Digest([]byte("ghost"))); !errors.Is(err, herr.LumpNotFound) {
		t.Errorf("Loan() error = %v, want herr.LumpNotFound", err)
	}
}
