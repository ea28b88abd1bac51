package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	c.Set("email", "thandi@example.com")
	v, ok := c.Get("email")
	if !ok || v != "thandi@example.com" {
		t.Errorf("got (%q, %v), want (thandi@example.com, true)", v, ok)
	}
}

func TestGetMissing(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	if _, ok := c.Get("nope"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestExpiry(t *testing.T) {
	c := New[string](10 * time.Millisecond)
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestDelete(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to be deleted")
	}
}
