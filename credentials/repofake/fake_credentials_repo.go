package credentialsrepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/retail-session/credentials"
)

var _ credentials.Repo = (*FakeCredentialsRepo)(nil)

// FakeCredentialsRepo is an in-memory Repo that counts writes and can be told to fail.
type FakeCredentialsRepo struct {
	values map[string]string
	lock   sync.RWMutex

	puts    int
	deletes int

	FailGet    error
	FailPut    error
	FailDelete error

	// OnPut runs after each successful Put, outside the repo lock.
	OnPut func(values map[string]string)
}

func NewFakeCredentialsRepo() *FakeCredentialsRepo {
	return &FakeCredentialsRepo{
		values: make(map[string]string),
	}
}

func (r *FakeCredentialsRepo) Get(_ context.Context, keys ...string) (map[string]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.FailGet != nil {
		return nil, r.FailGet
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := r.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (r *FakeCredentialsRepo) Put(_ context.Context, values map[string]string) error {
	r.lock.Lock()
	if r.FailPut != nil {
		r.lock.Unlock()
		return r.FailPut
	}
	for k, v := range values {
		r.values[k] = v
	}
	r.puts++
	hook := r.OnPut
	r.lock.Unlock()

	if hook != nil {
		hook(values)
	}
	return nil
}

func (r *FakeCredentialsRepo) Delete(_ context.Context, keys ...string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.FailDelete != nil {
		return r.FailDelete
	}
	for _, k := range keys {
		delete(r.values, k)
	}
	r.deletes++
	return nil
}

// Set writes a raw value without counting it, for seeding test state.
func (r *FakeCredentialsRepo) Set(key, value string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values[key] = value
}

// Raw returns a copy of everything stored.
func (r *FakeCredentialsRepo) Raw() map[string]string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Puts returns the number of successful Put calls.
func (r *FakeCredentialsRepo) Puts() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.puts
}

// Deletes returns the number of successful Delete calls.
func (r *FakeCredentialsRepo) Deletes() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.deletes
}
