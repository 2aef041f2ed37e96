// Package cache holds the derived read cache in front of the account store.
//
// Every entry has a sliding TTL, renewed on each hit, and an absolute TTL
// fixed at write time. Whichever elapses first evicts the entry. Values are
// stored as CBOR snapshots, so a cached value never aliases a live object.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidOptions is returned by Set for non-positive TTLs.
var ErrInvalidOptions = errors.New("cache: sliding and absolute ttl must be positive")

// Options carries the two expiry limits of an entry.
type Options struct {
	Sliding  time.Duration
	Absolute time.Duration
}

func (o Options) valid() bool {
	return o.Sliding > 0 && o.Absolute > 0
}

// Cache is a key/value store of encoded snapshots. Get reports whether key
// was present and decodes it into dst.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, opts Options) error
	Delete(ctx context.Context, keys ...string) error
}

// envelope is what actually gets stored under a key.
type envelope struct {
	Deadline int64           `cbor:"1,keyasint"`
	Sliding  int64           `cbor:"2,keyasint"`
	Payload  cbor.RawMessage `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	if encMode, err = opts.EncMode(); err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

func seal(value any, opts Options, now time.Time) ([]byte, error) {
	payload, err := encMode.Marshal(value)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(envelope{
		Deadline: now.Add(opts.Absolute).UnixNano(),
		Sliding:  int64(opts.Sliding),
		Payload:  payload,
	})
}

func open(data []byte) (envelope, error) {
	var env envelope
	err := decMode.Unmarshal(data, &env)
	return env, err
}

// remaining is how long the entry may live from now on: the sliding window
// capped by what is left of the absolute lifetime. Zero or less means expired.
func (e envelope) remaining(now time.Time) time.Duration {
	left := time.Duration(e.Deadline - now.UnixNano())
	if sliding := time.Duration(e.Sliding); sliding < left {
		return sliding
	}
	return left
}

func firstExpiry(opts Options) time.Duration {
	return min(opts.Sliding, opts.Absolute)
}
