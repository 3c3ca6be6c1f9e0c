package rsyncclient

import "testing"

func TestParseReferenceDoubleColon(t *testing.T) {
	ref, ok, err := ParseReference("backup.example.com::archive")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if !ok {
		t.Fatal("ParseReference: want ok=true for host::module form")
	}
	if ref.Host != "backup.example.com" || ref.Module != "archive" || ref.Port != defaultDaemonPort {
		t.Errorf("ref = %+v", ref)
	}
}

func TestParseReferenceDoubleColonListOnly(t *testing.T) {
	ref, ok, err := ParseReference("backup.example.com::")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if !ok || ref.Module != "" {
		t.Errorf("ref = %+v, ok = %v", ref, ok)
	}
}

func TestParseReferenceWithUser(t *testing.T) {
	ref, ok, err := ParseReference("alice@backup.example.com::archive")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if !ok || ref.User != "alice" || ref.Host != "backup.example.com" {
		t.Errorf("ref = %+v, ok = %v", ref, ok)
	}
}

func TestParseReferenceURL(t *testing.T) {
	ref, ok, err := ParseReference("rsync://bob@backup.example.com:8730/archive")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if !ok {
		t.Fatal("ParseReference: want ok=true for rsync:// form")
	}
	if ref.Host != "backup.example.com" || ref.Port != "8730" || ref.Module != "archive" || ref.User != "bob" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestParseReferenceURLDefaultPort(t *testing.T) {
	ref, ok, err := ParseReference("rsync://backup.example.com/archive")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if !ok || ref.Port != defaultDaemonPort {
		t.Errorf("ref = %+v, ok = %v", ref, ok)
	}
}

func TestParseReferenceNotADaemonReference(t *testing.T) {
	_, ok, err := ParseReference("/local/path")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if ok {
		t.Fatal("ParseReference: want ok=false for a plain local path")
	}
}
