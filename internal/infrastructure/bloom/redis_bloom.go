package bloom

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryFilter remembers which messages were already handled, shared by
// every replica through one Redis bitmap. A hit is probabilistic: a message
// may be reported as seen when it was not, never the other way round.
type DeliveryFilter struct {
	client *redis.Client
	key    string
	m      uint64 // size in bits
	k      uint64 // number of hash functions
	ttl    time.Duration
}

// NewDeliveryFilter sizes the bitmap for the expected number of deliveries
// per ttl window. The bitmap expires ttl after it was first written.
func NewDeliveryFilter(client *redis.Client, key string, expected uint64, falsePositiveRate float64, ttl time.Duration) *DeliveryFilter {
	m, k := OptimalParameters(expected, falsePositiveRate)
	return &DeliveryFilter{
		client: client,
		key:    key,
		m:      m,
		k:      k,
		ttl:    ttl,
	}
}

// Seen marks id as delivered and reports whether it had been marked before.
func (f *DeliveryFilter) Seen(ctx context.Context, id string) (bool, error) {
	hashes := f.positions(id)

	pipe := f.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(hashes))
	for i, pos := range hashes {
		cmds[i] = pipe.SetBit(ctx, f.key, int64(pos), 1)
	}
	if f.ttl > 0 {
		pipe.ExpireNX(ctx, f.key, f.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Size reports the bitmap length in bits and the number of hash functions.
func (f *DeliveryFilter) Size() (bits, hashes uint64) {
	return f.m, f.k
}

// positions uses double hashing to derive k bit offsets from two hashes.
func (f *DeliveryFilter) positions(id string) []uint64 {
	h1 := fnvHash(id)
	h2 := shaHash(id)

	out := make([]uint64, f.k)
	for i := uint64(0); i < f.k; i++ {
		out[i] = (h1 + i*h2) % f.m
	}
	return out
}

func fnvHash(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

func shaHash(id string) uint64 {
	h := sha256.Sum256([]byte(id))
	return binary.BigEndian.Uint64(h[:8])
}

// EstimateFalsePositiveRate is the chance that a fresh message is dropped as a
// redelivery once delivered messages were marked within one ttl window.
func (f *DeliveryFilter) EstimateFalsePositiveRate(delivered uint64) float64 {
	if delivered == 0 {
		return 0.0
	}

	exponent := -float64(f.k*delivered) / float64(f.m)
	base := 1.0 - math.Exp(exponent)
	return math.Pow(base, float64(f.k))
}

func OptimalParameters(expected uint64, falsePositiveRate float64) (m, k uint64) {
	if expected == 0 {
		expected = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.001
	}

	mFloat := -float64(expected) * math.Log(falsePositiveRate) / (math.Log(2) * math.Log(2))
	m = uint64(math.Ceil(mFloat))

	kFloat := (float64(m) / float64(expected)) * math.Log(2)
	k = uint64(math.Round(kFloat))

	if k == 0 {
		k = 1
	}

	return m, k
}
