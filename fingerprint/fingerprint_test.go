package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestClassifyNewThenUnchanged(t *testing.T) {
	s := newTestStore(t)
	data := []byte(`{"id":"abc","title":"hello"}`)

	c, err := s.Classify("abc_Data.json", data)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c != New {
		t.Fatalf("classification = %v, want New", c)
	}
	if err := s.Commit("abc_Data.json", data); err != nil {
		t.Fatalf("commit: %v", err)
	}
	c, err = s.Classify("abc_Data.json", data)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c != Unchanged {
		t.Errorf("classification = %v, want Unchanged", c)
	}
}

func TestRotationKeepsRevisions(t *testing.T) {
	s := newTestStore(t)
	v1 := []byte(`{"title":"one"}`)
	v2 := []byte(`{"title":"two"}`)
	v3 := []byte(`{"title":"three"}`)

	for _, v := range [][]byte{v1, v2, v3} {
		if err := s.Commit("vid_Data.json", v); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	got, err := os.ReadFile(s.Path("vid_Data.json"))
	if err != nil {
		t.Fatalf("read canonical: %v", err)
	}
	if string(got) != string(v3) {
		t.Errorf("canonical = %s, want %s", got, v3)
	}
	// Suffix lands before the extension, oldest revision first.
	r1, err := os.ReadFile(filepath.Join(s.Dir, "vid_Data_1.json"))
	if err != nil {
		t.Fatalf("read _1: %v", err)
	}
	if string(r1) != string(v1) {
		t.Errorf("revision 1 = %s, want %s", r1, v1)
	}
	r2, err := os.ReadFile(filepath.Join(s.Dir, "vid_Data_2.json"))
	if err != nil {
		t.Fatalf("read _2: %v", err)
	}
	if string(r2) != string(v2) {
		t.Errorf("revision 2 = %s, want %s", r2, v2)
	}
}

func TestRevertedPayloadIsUnchanged(t *testing.T) {
	s := newTestStore(t)
	v1 := []byte(`{"title":"original"}`)
	v2 := []byte(`{"title":"edited"}`)

	if err := s.Commit("vid_Data.json", v1); err != nil {
		t.Fatalf("commit v1: %v", err)
	}
	if err := s.Commit("vid_Data.json", v2); err != nil {
		t.Fatalf("commit v2: %v", err)
	}

	// v1 now lives under a rotated suffix; re-seeing it must not rotate again.
	c, err := s.Classify("vid_Data.json", v1)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c != Unchanged {
		t.Errorf("classification = %v, want Unchanged", c)
	}
}

func TestCommitIdenticalIsNoop(t *testing.T) {
	s := newTestStore(t)
	data := []byte(`{"a":1}`)
	if err := s.Commit("x.json", data); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Commit("x.json", data); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir, "x_1.json")); !os.IsNotExist(err) {
		t.Errorf("identical commit rotated a revision")
	}
}

func TestPutOverwritesWithoutRotation(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("thumb.jpg", []byte("aaa")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("thumb.jpg", []byte("bbb")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := os.ReadFile(s.Path("thumb.jpg"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "bbb" {
		t.Errorf("content = %s", got)
	}
	if _, err := os.Stat(filepath.Join(s.Dir, "thumb_1.jpg")); !os.IsNotExist(err) {
		t.Errorf("Put rotated a revision")
	}
}
