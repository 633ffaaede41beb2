// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var errFakeEncrypt = errors.New("fake encrypt failure")

// fakeInstance records the values added to its builders. Each added value
// becomes one handle; the proof is the handle count followed by the data.
type fakeInstance struct {
	cfg       InstanceConfig
	failNext  atomic.Bool
	lastInput atomic.Pointer[fakeInput]
}

func (f *fakeInstance) CreateEncryptedInput() InputBuilder {
	in := &fakeInput{fail: f.failNext.Swap(false)}
	f.lastInput.Store(in)
	return in
}

func (*fakeInstance) PublicKey() []byte { return []byte("fake-public-key") }

type fakeValue struct {
	width Width
	value *uint256.Int
}

type fakeInput struct {
	fail   bool
	values []fakeValue
}

func (in *fakeInput) add(w Width, v *uint256.Int) InputBuilder {
	in.values = append(in.values, fakeValue{width: w, value: v})
	return in
}

func (in *fakeInput) Add8(v uint8) InputBuilder   { return in.add(Uint8, uint256.NewInt(uint64(v))) }
func (in *fakeInput) Add16(v uint16) InputBuilder { return in.add(Uint16, uint256.NewInt(uint64(v))) }
func (in *fakeInput) Add32(v uint32) InputBuilder { return in.add(Uint32, uint256.NewInt(uint64(v))) }
func (in *fakeInput) Add64(v *uint256.Int) InputBuilder {
	return in.add(Uint64, new(uint256.Int).Set(v))
}

func (in *fakeInput) Add128(v *uint256.Int) InputBuilder {
	return in.add(Uint128, new(uint256.Int).Set(v))
}

func (in *fakeInput) Add256(v *uint256.Int) InputBuilder {
	return in.add(Uint256, new(uint256.Int).Set(v))
}

func (in *fakeInput) Encrypt() (*EncryptedInput, error) {
	if in.fail {
		return nil, errFakeEncrypt
	}
	out := &EncryptedInput{}
	for i, v := range in.values {
		b := v.value.Bytes32()
		out.Data = append(out.Data, b[:]...)
		h := common.BytesToHash(b[:])
		h[0] = byte(i + 1)
		h[30] = byte(v.width >> 8)
		h[31] = byte(v.width)
		out.Handles = append(out.Handles, h)
	}
	out.InputProof = append([]byte{byte(len(in.values))}, out.Data...)
	return out, nil
}

// countingFactory builds fakeInstances and counts constructions.
type countingFactory struct {
	calls atomic.Int32
	err   error
}

func (f *countingFactory) build(_ context.Context, cfg InstanceConfig) (Instance, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeInstance{cfg: cfg}, nil
}
