package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsStore(t *testing.T) {
	err := NewStoreErr("Registry", Corrupted, "duplicate record")

	if !IsStore(err, Corrupted) {
		t.Fatalf("expected a Corrupted error")
	}
	if IsStore(err, KeyNotFound) {
		t.Fatalf("not a KeyNotFound error")
	}
	if !IsStore(fmt.Errorf("loading: %w", err), Corrupted) {
		t.Fatalf("a wrapped error should be recognized")
	}
	if IsStore(errors.New("Registry, duplicate record, Corrupted"), Corrupted) {
		t.Fatalf("only StoreErr values are store errors")
	}
	if err.Error() != "Registry, duplicate record, Corrupted" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
