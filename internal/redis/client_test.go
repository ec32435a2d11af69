package redis

import (
	"context"
	"testing"
	"time"

	"github.com/mossy-p/reunion/config"
)

func TestOptions(t *testing.T) {
	opts := options(config.RedisConfig{Host: "::1", Port: "6380", Password: "pw", DB: 2})

	if opts.Addr != "[::1]:6380" {
		t.Errorf("Addr = %q", opts.Addr)
	}
	if opts.DB != 2 || opts.Password != "pw" {
		t.Errorf("DB/Password not carried: %+v", opts)
	}
	if opts.ReadTimeout != ioTimeout || opts.WriteTimeout != ioTimeout {
		t.Errorf("timeouts = %v/%v", opts.ReadTimeout, opts.WriteTimeout)
	}
}

func TestConnectUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Port 1 on localhost is closed on any sane test machine.
	if err := Connect(ctx, config.RedisConfig{Host: "127.0.0.1", Port: "1"}); err == nil {
		t.Fatal("expected connection error")
	}
	if GetClient() != nil {
		t.Error("failed Connect should not leave a client behind")
	}
}
