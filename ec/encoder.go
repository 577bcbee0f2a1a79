// Package ec is the erasure-coding scaffold spec.md's Non-goals call out as
// present but inert: this store is single-node, so there are no other
// targets to hold parity shards on. Encoder below is the shape a future
// multi-node build would drive; nothing in objectsvc calls it while
// cmn.ErasureConf.Enabled defaults to false.
package ec

import (
	"github.com/klauspost/reedsolomon"

	"github.com/hafiz-io/hafiz/cmn"
)

// Encoder splits an object body into data and parity shards, mirroring the
// teacher's ec.Manager's use of klauspost/reedsolomon, minus the
// cluster.Smap-driven target selection and transport/bundle fan-out the
// teacher needs to actually place shards on other nodes.
type Encoder struct {
	enc reedsolomon.Encoder

	DataShards   int
	ParityShards int
}

// NewEncoder builds an Encoder from cfg. Returns an error if erasure coding
// is disabled or the shard counts are invalid, so callers fail loudly
// rather than silently skipping protection.
func NewEncoder(cfg cmn.ErasureConf) (*Encoder, error) {
	if !cfg.Enabled {
		return nil, cmn.New("ErasureDisabled", 0, cmn.KindUnimplemented,
			"erasure coding is disabled (cmn.ErasureConf.Enabled is false)")
	}
	if cfg.DataShards <= 0 || cfg.ParityShards <= 0 {
		return nil, cmn.ErrInvalidArgument("erasure.data_shards and erasure.parity_shards must both be positive")
	}
	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "construct reed-solomon encoder")
	}
	return &Encoder{enc: enc, DataShards: cfg.DataShards, ParityShards: cfg.ParityShards}, nil
}

// Encode splits data into DataShards equal-size pieces (padding the last
// with zeros as reedsolomon.Split requires) and computes ParityShards
// parity pieces, returning all shards in data-then-parity order.
func (e *Encoder) Encode(data []byte) ([][]byte, error) {
	shards, err := e.enc.Split(data)
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "split object into shards")
	}
	if err := e.enc.Encode(shards); err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "compute parity shards")
	}
	return shards, nil
}

// Reconstruct repairs missing shards in place. shards[i] == nil marks a
// shard as missing/lost; on success every entry is filled in.
func (e *Encoder) Reconstruct(shards [][]byte) error {
	if err := e.enc.Reconstruct(shards); err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "reconstruct missing shards")
	}
	return nil
}

// Verify reports whether shards' parity is internally consistent, e.g.
// after a scrub read.
func (e *Encoder) Verify(shards [][]byte) (bool, error) {
	ok, err := e.enc.Verify(shards)
	if err != nil {
		return false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "verify shard parity")
	}
	return ok, nil
}
