package vos

import (
	"sort"
	"strings"
	"sync"
)

// VEnv is a set of environment variables.
type VEnv interface {
	// LookupEnv retrieves the value of the environment variable named by the key.
	// If the variable is present in the environment the value (which may be
	// empty) is returned and the boolean is true. Otherwise the returned value
	// will be empty and the boolean will be false.
	LookupEnv(key string) (string, bool)

	// Getenv retrieves the value of the environment variable named by the key.
	// It returns the value, which will be empty if the variable is not present.
	Getenv(key string) string

	// Setenv sets the value of the environment variable named by the key.
	Setenv(key, value string) error

	// Unsetenv unsets a single environment variable.
	Unsetenv(key string) error

	// Environ returns a sorted copy of the environment in the form "key=value".
	Environ() []string
}

type EnvironFetcher interface {
	Environ() []string
}

// splitEnv splits a "key=value" pair, a missing '=' yields an empty value.
func splitEnv(e string) (key, value string) {
	key, value, _ = strings.Cut(e, "=")
	return key, value
}

// CopyEnv copies all the environment variables from src to dst.
func CopyEnv(dst VEnv, src EnvironFetcher) error {
	for _, e := range src.Environ() {
		key, value := splitEnv(e)
		if err := dst.Setenv(key, value); err != nil {
			return err
		}
	}

	return nil
}

// SetAll applies a list of "key=value" assignments to dst.
func SetAll(dst VEnv, assignments []string) error {
	return CopyEnv(dst, envList(assignments))
}

type envList []string

func (e envList) Environ() []string {
	return e
}

// NewMapEnv creates a new environment backed by a map.
func NewMapEnv() *MapEnv {
	return &MapEnv{}
}

// NewMapEnvFromEnvList creates an environment from "key=value" pairs, like
// the ones returned by os.Environ.
func NewMapEnvFromEnvList(environ []string) *MapEnv {
	out := &MapEnv{}
	// Ignore error, it will never be set for MapEnv.
	_ = CopyEnv(out, envList(environ))
	return out
}

// MapEnv implements an in-memory VEnv that's safe for concurrent use.
type MapEnv struct {
	rw  sync.RWMutex
	env map[string]string
}

var _ VEnv = (*MapEnv)(nil)

// Unsetenv implements VEnv.Unsetenv.
func (m *MapEnv) Unsetenv(key string) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	delete(m.env, key)
	return nil
}

// Setenv implements VEnv.Setenv.
func (m *MapEnv) Setenv(key, value string) error {
	m.rw.Lock()
	defer m.rw.Unlock()

	if m.env == nil {
		m.env = make(map[string]string)
	}
	m.env[key] = value
	return nil
}

// LookupEnv implements VEnv.LookupEnv.
func (m *MapEnv) LookupEnv(key string) (string, bool) {
	m.rw.RLock()
	defer m.rw.RUnlock()

	val, ok := m.env[key]
	return val, ok
}

// Getenv implements VEnv.Getenv.
func (m *MapEnv) Getenv(key string) string {
	val, _ := m.LookupEnv(key)
	return val
}

// Environ implements VEnv.Environ.
func (m *MapEnv) Environ() []string {
	m.rw.RLock()
	defer m.rw.RUnlock()

	env := make([]string, 0, len(m.env))
	for k, v := range m.env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Clone returns an independent copy of the environment.
func (m *MapEnv) Clone() *MapEnv {
	return NewMapEnvFromEnvList(m.Environ())
}

// Overlay resolves a fixed set of variables before falling back to Base. It
// is read-only and is used to expose shell parameters like $? that aren't
// exported to children.
type Overlay struct {
	Base VEnv
	Vars map[string]string
}

// LookupEnv checks Vars then Base.
func (o *Overlay) LookupEnv(key string) (string, bool) {
	if val, ok := o.Vars[key]; ok {
		return val, true
	}
	if o.Base == nil {
		return "", false
	}
	return o.Base.LookupEnv(key)
}
