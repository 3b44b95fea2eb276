package queue

import "testing"

// Eight-character host:port values used to be sliced as if they were URL
// schemes and crashed the worker at startup.
func TestRedisOptShortHostPort(t *testing.T) {
	opt, err := RedisOpt("redis:80", "", 0)
	if err != nil {
		t.Fatalf("RedisOpt: %v", err)
	}
	if opt.Addr != "redis:80" {
		t.Fatalf("addr = %q, want redis:80", opt.Addr)
	}
}

func TestRedisOptPlainHostPort(t *testing.T) {
	opt, err := RedisOpt("localhost:6379", "pw", 1)
	if err != nil {
		t.Fatalf("RedisOpt: %v", err)
	}
	if opt.Addr != "localhost:6379" || opt.Password != "pw" || opt.DB != 1 {
		t.Fatalf("got %q/%q/%d", opt.Addr, opt.Password, opt.DB)
	}
}

func TestRedisOptURL(t *testing.T) {
	opt, err := RedisOpt("redis://:secret@cache.internal:6380/2", "ignored", 0)
	if err != nil {
		t.Fatalf("RedisOpt: %v", err)
	}
	if opt.Addr != "cache.internal:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("got %q/%q/%d", opt.Addr, opt.Password, opt.DB)
	}
}

func TestRedisOptEmpty(t *testing.T) {
	if _, err := RedisOpt("", "", 0); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
