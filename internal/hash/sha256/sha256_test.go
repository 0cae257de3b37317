// Package sha256 verifies the digest helper.
package sha256

import "testing"

// TestHasherKnownVector checks the digest of a fixed input against the
// published SHA-256 value.
func TestHasherKnownVector(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("abc"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("Hash() = %s, want %s", got, want)
	}
}

// TestHasherEmptyInput ensures hashing empty data is stable and error-free.
func TestHasherEmptyInput(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash(nil)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("Hash() = %s, want %s", got, want)
	}
}
