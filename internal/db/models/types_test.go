package models

import (
	"testing"
)

func TestStringList_ValueAndScan(t *testing.T) {
	v, err := StringList(nil).Value()
	if err != nil || string(v.([]byte)) != "[]" {
		t.Fatalf("nil StringList Value() = %v, %v; want []", v, err)
	}

	var l StringList
	if err := l.Scan([]byte(`["servers:read","*"]`)); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(l) != 2 || !l.Contains("*") {
		t.Errorf("Scan() = %v", l)
	}

	if err := l.Scan(nil); err != nil || len(l) != 0 {
		t.Errorf("Scan(nil) = %v, %v; want empty list", l, err)
	}
	if err := l.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
	if err := l.Scan("not json"); err == nil {
		t.Error("Scan(invalid json) expected error")
	}
}

func TestStringMap_ValueAndScan(t *testing.T) {
	v, err := StringMap(nil).Value()
	if err != nil || string(v.([]byte)) != "{}" {
		t.Fatalf("nil StringMap Value() = %v, %v; want {}", v, err)
	}

	var m StringMap
	if err := m.Scan(`{"region":"us-east-1"}`); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if m["region"] != "us-east-1" {
		t.Errorf("Scan() = %v", m)
	}
	if err := m.Scan(nil); err != nil || m == nil || len(m) != 0 {
		t.Errorf("Scan(nil) = %v, %v; want empty non-nil map", m, err)
	}
}

func TestJSONObject_ValueAndScan(t *testing.T) {
	v, err := JSONObject(nil).Value()
	if err != nil || v != nil {
		t.Fatalf("nil JSONObject Value() = %v, %v; want nil", v, err)
	}

	var o JSONObject
	if err := o.Scan([]byte(`{"status":201,"path":"/api/v1/servers"}`)); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if o["path"] != "/api/v1/servers" {
		t.Errorf("Scan() = %v", o)
	}
}
