// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"

	"github.com/luxfi/fhevm"
)

var errHandleExists = errors.New("handle already registered")

// entry is one registered ciphertext and the accounts allowed to read it.
type entry struct {
	contract   common.Address
	ciphertext []byte
	width      fhevm.Width
	allowed    set.Set[common.Address]
	public     bool
}

type store struct {
	lock    sync.RWMutex
	entries map[common.Hash]*entry
}

func newStore() *store {
	return &store{entries: make(map[common.Hash]*entry)}
}

func (s *store) get(handle common.Hash) (*entry, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	e, ok := s.entries[handle]
	return e, ok
}

// add stores every entry, or none of them if any handle is already
// registered. A registered handle's access list never changes.
func (s *store) add(handles []common.Hash, entries []*entry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, handle := range handles {
		if _, ok := s.entries[handle]; ok {
			return fmt.Errorf("%w: %s", errHandleExists, handle)
		}
	}
	for idx, handle := range handles {
		s.entries[handle] = entries[idx]
	}
	return nil
}

func (s *store) len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.entries)
}
