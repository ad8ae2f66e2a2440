package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/peer"
)

func TestPeerRateLimiter_BurstThenDeny(t *testing.T) {
	rl := newPeerRateLimiter(1, 2)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	// other hosts have their own bucket
	assert.True(t, rl.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, rl.allow("10.0.0.1"))
}

func TestPeerRateLimiter_EvictsIdleHosts(t *testing.T) {
	rl := newPeerRateLimiter(1, 1)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(5 * time.Minute)
	rl.allow("b")
	now = now.Add(6 * time.Minute)

	rl.evict()

	assert.NotContains(t, rl.visitors, "a")
	assert.Contains(t, rl.visitors, "b")
}

func TestPeerHost(t *testing.T) {
	assert.Equal(t, "", peerHost(context.Background()))

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.168.1.5"), Port: 4242}})
	assert.Equal(t, "192.168.1.5", peerHost(ctx))
}
