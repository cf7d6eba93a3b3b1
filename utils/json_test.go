package utils

import "testing"

func TestJSONPaths(t *testing.T) {
	m, err := JSONToMap([]byte(`{"features":{"contactForm":true},"tos":"https://example.com"}`))
	if err != nil {
		t.Fatalf("JSONToMap: %v", err)
	}
	if v, ok := GetPath(m, "features.contactForm"); !ok || v != true {
		t.Fatalf("GetPath features.contactForm: %v %v", v, ok)
	}
	if _, ok := GetPath(m, "tos.nested"); ok {
		t.Fatalf("a path through a scalar should not resolve")
	}
	if _, ok := GetPath(m, "missing"); ok {
		t.Fatalf("missing key should not resolve")
	}

	SetPath(m, "collectivePage.background.crop", 3)
	if v, ok := GetPath(m, "collectivePage.background.crop"); !ok || v != 3 {
		t.Fatalf("SetPath should create intermediate objects, got %v", m)
	}
	SetPath(m, "features.contactForm", nil)
	if _, ok := GetPath(m, "features.contactForm"); ok {
		t.Fatalf("a nil value should remove the key")
	}

	for _, empty := range []string{"", "null"} {
		m, err := JSONToMap([]byte(empty))
		if err != nil || len(m) != 0 {
			t.Fatalf("%q should decode to an empty map, got %v %v", empty, m, err)
		}
	}
	if _, err := JSONToMap([]byte(`[1,2]`)); err == nil {
		t.Fatalf("a JSON array is not an object")
	}
}
