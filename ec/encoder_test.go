package ec

import (
	"bytes"
	"testing"

	"github.com/hafiz-io/hafiz/cmn"
)

func TestNewEncoderRejectsDisabledConfig(t *testing.T) {
	if _, err := NewEncoder(cmn.ErasureConf{Enabled: false, DataShards: 4, ParityShards: 2}); err == nil {
		t.Fatal("expected disabled erasure config to be rejected")
	}
}

func TestEncodeReconstructRoundTrip(t *testing.T) {
	enc, err := NewEncoder(cmn.ErasureConf{Enabled: true, DataShards: 4, ParityShards: 2})
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte("0123456789abcdef"), 64)
	shards, err := enc.Encode(data)
	if err != nil {
		t.Fatal(err)
	}

	lost := make([][]byte, len(shards))
	copy(lost, shards)
	lost[0] = nil
	lost[3] = nil

	if err := enc.Reconstruct(lost); err != nil {
		t.Fatal(err)
	}
	for i := range shards {
		if !bytes.Equal(lost[i], shards[i]) {
			t.Fatalf("shard %d did not reconstruct correctly", i)
		}
	}

	ok, err := enc.Verify(shards)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected freshly encoded shards to verify")
	}
}
