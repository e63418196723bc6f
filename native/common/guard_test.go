package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("expected nil view to pass, got %v", err)
	}
}

func TestSwitchboardGuard(t *testing.T) {
	board := NewSwitchboard(" Lending ")
	if err := Guard(board, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(board, ""); err != nil {
		t.Fatalf("expected empty module to pass, got %v", err)
	}
	board.Set("lending", false)
	if err := Guard(board, "lending"); err != nil {
		t.Fatalf("expected resumed module to pass, got %v", err)
	}
}
