// Package muid generates Monotonically Unique IDs (MUIDs), 64-bit values
// inspired by Twitter's Snowflake IDs, used to tag machine instances for
// diagnostic logging. The default layout is:
//
//	[40 bits timestamp (ms since epoch)] [14 bits machine ID] [S bits shard index] [10-S bits counter]
//
// where S is 0 to 5, chosen from the number of CPUs. Bit allocation and
// epoch are customizable via Config.
package muid

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"math"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type shardedGenerators struct {
	pool []*Generator
	size uint64
	idx  atomic.Uint64
}

var (
	DefaultConfig = sync.OnceValue(func() Config {
		config := Config{
			TimestampBitLen: 40,
			MachineIDBitLen: 14,
			Epoch:           1700000000000,
		}
		machineIDMask := uint64((1 << config.MachineIDBitLen) - 1)

		hostname, err := os.Hostname()
		var machineID uint64
		if err != nil || hostname == "" {
			var b [8]byte
			_, _ = rand.Read(b[:])
			machineID = binary.BigEndian.Uint64(b[:]) & machineIDMask
		} else {
			hash := fnv.New64a()
			hash.Write([]byte(hostname))
			machineID = hash.Sum64() & machineIDMask
		}
		config.MachineID = machineID
		return config
	})

	defaultShards = sync.OnceValue(func() *shardedGenerators {
		numCPU := max(runtime.NumCPU(), 1)
		shardBits := 0
		if numCPU > 1 {
			shardBits = min(int(math.Ceil(math.Log2(float64(numCPU)))), 5)
		}

		base := DefaultConfig()
		template := Config{
			MachineID:       base.MachineID,
			TimestampBitLen: base.TimestampBitLen,
			MachineIDBitLen: base.MachineIDBitLen,
			Epoch:           base.Epoch,
		}

		pool := make([]*Generator, 1<<shardBits)
		for i := 0; i < 1<<shardBits; i++ {
			pool[i] = NewGenerator(template, uint64(i), shardBits)
		}
		return &shardedGenerators{pool: pool, size: uint64(1 << shardBits)}
	})

	defaultConfig = DefaultConfig()
	shards        = defaultShards()
)

type Config struct {
	MachineID       uint64
	TimestampBitLen int
	MachineIDBitLen int
	Epoch           int64
}

// MUID is a Monotonically Unique ID.
type MUID uint64

// String returns the base32 encoding of the MUID.
func (m MUID) String() string {
	return strconv.FormatUint(uint64(m), 32)
}

// Generator produces MUIDs from one shard of the ID space.
type Generator struct {
	machineID         uint64
	counterBitLen     int
	timestampBitShift int
	counterBitMask    uint64
	epoch             int64
	state             atomic.Uint64
	shardIndex        uint64
	shardBitLen       int
	machineIDShift    int
	shardIndexShift   int
}

// NewGenerator builds a Generator; zero fields in config fall back to defaults.
func NewGenerator(config Config, shardIndex uint64, shardBitLen int) *Generator {
	timestampBitLen := config.TimestampBitLen
	if timestampBitLen <= 0 {
		timestampBitLen = defaultConfig.TimestampBitLen
	}
	machineIDBitLen := config.MachineIDBitLen
	if machineIDBitLen <= 0 {
		machineIDBitLen = defaultConfig.MachineIDBitLen
	}
	epoch := config.Epoch
	if epoch <= 0 {
		epoch = defaultConfig.Epoch
	}

	g := &Generator{
		epoch:       epoch,
		shardIndex:  shardIndex & ((1 << shardBitLen) - 1),
		shardBitLen: shardBitLen,
	}
	g.counterBitLen = 64 - timestampBitLen - machineIDBitLen - shardBitLen
	g.timestampBitShift = machineIDBitLen + shardBitLen + g.counterBitLen
	g.machineIDShift = shardBitLen + g.counterBitLen
	g.shardIndexShift = g.counterBitLen
	g.counterBitMask = (1 << g.counterBitLen) - 1

	machineID := config.MachineID
	if machineID <= 0 {
		machineID = defaultConfig.MachineID
	}
	g.machineID = machineID & ((1 << machineIDBitLen) - 1)

	g.state.Store(1)
	return g
}

// ID generates a new MUID. Thread-safe; tolerates clock regression and
// counter overflow within a millisecond by advancing the timestamp virtually.
func (g *Generator) ID() MUID {
	for {
		now := uint64(time.Now().UnixMilli() - g.epoch)

		previous := g.state.Load()
		lastTimestamp := previous >> g.counterBitLen
		counter := previous & g.counterBitMask

		if now < lastTimestamp {
			now = lastTimestamp
		}

		if now == lastTimestamp {
			if counter >= g.counterBitMask {
				now++
				counter = 1
			} else {
				counter++
			}
		} else {
			counter = 1
		}

		newState := (now << g.counterBitLen) | counter
		if g.state.CompareAndSwap(previous, newState) {
			id := (now << g.timestampBitShift) |
				(g.machineID << g.machineIDShift) |
				(g.shardIndex << g.shardIndexShift) |
				counter
			return MUID(id)
		}
	}
}

// Make generates a MUID using the default sharded generator pool.
func Make() MUID {
	idx := shards.idx.Add(1) % shards.size
	return shards.pool[idx].ID()
}
