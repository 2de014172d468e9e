package service

import "github.com/google/uuid"

// KeyGenerator produces idempotency keys for mutating requests.
type KeyGenerator interface {
	NewKey() string
}

// UUIDKeyGenerator issues random (version 4) UUIDs.
type UUIDKeyGenerator struct{}

func (UUIDKeyGenerator) NewKey() string {
	return uuid.New().String()
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func() string

func (f KeyGeneratorFunc) NewKey() string { return f() }
