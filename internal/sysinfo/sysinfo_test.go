package sysinfo

import (
	"os"
	"testing"
)

func TestCollectSelf(t *testing.T) {
	st, err := Collect(os.Getpid())
	if err != nil {
		t.Fatalf("collect self: %v", err)
	}
	if st.RSSMB < 0 {
		t.Fatalf("negative RSS: %d", st.RSSMB)
	}
	if st.OpenFDs < 0 {
		t.Fatalf("negative FD count: %d", st.OpenFDs)
	}
}

func TestCollectInvalidPID(t *testing.T) {
	if _, err := Collect(0); err == nil {
		t.Fatal("expected error for pid 0")
	}
	if _, err := Collect(-1); err == nil {
		t.Fatal("expected error for negative pid")
	}
}
