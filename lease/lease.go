package lease

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PelionIoT/regionsync/kv"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/util"
)

var (
	ErrLeaseHeld    = errors.New("lease is held by another owner")
	ErrLeaseExpired = errors.New("lease expired or was taken by another owner")
)

// Manager hands out time bounded exclusive leases on keys of a shared
// store. A lease is a key whose value is a random token known only to its
// holder, so renewal and release succeed only for the current owner.
type Manager struct {
	store kv.Store
	now   func() time.Time
}

func NewManager(store kv.Store) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
	}
}

func (manager *Manager) WithClock(now func() time.Time) *Manager {
	manager.now = now

	return manager
}

func (manager *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := util.UUID()
	acquired, err := manager.store.SetNX(ctx, key, []byte(token), ttl)

	if err != nil {
		return nil, err
	}

	if !acquired {
		return nil, ErrLeaseHeld
	}

	Log.Debugf("Acquired lease %s with token %s for %v", key, token, ttl)

	return &Lease{
		manager:   manager,
		key:       key,
		token:     token,
		ttl:       ttl,
		renewedAt: manager.now(),
	}, nil
}

type Lease struct {
	manager   *Manager
	key       string
	token     string
	ttl       time.Duration
	mu        sync.Mutex
	renewedAt time.Time
}

func (lease *Lease) Key() string {
	return lease.key
}

func (lease *Lease) Token() string {
	return lease.token
}

func (lease *Lease) TTL() time.Duration {
	return lease.ttl
}

// Expires returns the time at which the lease lapses unless renewed.
func (lease *Lease) Expires() time.Time {
	lease.mu.Lock()
	defer lease.mu.Unlock()

	return lease.renewedAt.Add(lease.ttl)
}

// NeedsRenewal reports whether at least half of the ttl has elapsed since
// the lease was acquired or last renewed.
func (lease *Lease) NeedsRenewal() bool {
	lease.mu.Lock()
	defer lease.mu.Unlock()

	return lease.manager.now().Sub(lease.renewedAt) >= lease.ttl/2
}

func (lease *Lease) Renew(ctx context.Context) error {
	renewed, err := lease.manager.store.CompareAndExpire(ctx, lease.key, []byte(lease.token), lease.ttl)

	if err != nil {
		return err
	}

	if !renewed {
		return ErrLeaseExpired
	}

	lease.mu.Lock()
	lease.renewedAt = lease.manager.now()
	lease.mu.Unlock()

	return nil
}

// Release gives up the lease if it is still owned by this holder. It
// reports whether the key was deleted.
func (lease *Lease) Release(ctx context.Context) (bool, error) {
	released, err := lease.manager.store.CompareAndDelete(ctx, lease.key, []byte(lease.token))

	if err != nil {
		return false, err
	}

	if !released {
		Log.Warningf("Lease %s was no longer held by token %s at release", lease.key, lease.token)
	}

	return released, nil
}
