////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Multi groups several stoppables so they can be closed together.
type Multi struct {
	name       string
	stoppables []Stoppable
	running    uint32
	mux        sync.RWMutex
	once       sync.Once
}

// NewMulti returns a running Multi with no children.
func NewMulti(name string) *Multi {
	return &Multi{name: name, running: 1}
}

// Add adds a child stoppable.
func (m *Multi) Add(s Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, s)
	m.mux.Unlock()
}

// Name returns the name of the Multi followed by the names of its children.
func (m *Multi) Name() string {
	m.mux.RLock()
	defer m.mux.RUnlock()

	names := make([]string, len(m.stoppables))
	for i, s := range m.stoppables {
		names[i] = s.Name()
	}
	return m.name + ": {" + strings.Join(names, ", ") + "}"
}

// IsRunning returns true if Close has not been called.
func (m *Multi) IsRunning() bool {
	return atomic.LoadUint32(&m.running) == 1
}

// IsStopped returns true if every child is stopped.
func (m *Multi) IsStopped() bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	for _, s := range m.stoppables {
		if !s.IsStopped() {
			return false
		}
	}
	return !m.IsRunning()
}

// Close closes every child. Child errors are counted, not returned
// individually; the children log them.
func (m *Multi) Close() error {
	var err error
	m.once.Do(func() {
		atomic.StoreUint32(&m.running, 0)

		m.mux.RLock()
		defer m.mux.RUnlock()

		failed := 0
		for _, s := range m.stoppables {
			if s.Close() != nil {
				failed++
			}
		}
		if failed > 0 {
			err = errors.Errorf("multi stoppable %s failed to close "+
				"%d/%d stoppables", m.name, failed, len(m.stoppables))
		}
	})
	return err
}
