package cache

import "strings"

// Key identifies a cached result set: a namespace plus the arguments that
// distinguish one request from another.
type Key struct {
	Namespace string
	Args      []any
}

// NewKey builds a key for namespace and args.
func NewKey(namespace string, args ...any) *Key {
	return &Key{Namespace: namespace, Args: args}
}

// Serialize renders the key with the given serializer.
func (k *Key) Serialize(s KeySerializer) string {
	return s.SerializeKey(k.Namespace, k.Args...)
}

// Namespace joins namespace segments with KeySeparator.
func Namespace(segments ...string) string {
	return strings.Join(segments, KeySeparator)
}

// Prefix returns the prefix shared by every key under namespace.
func Prefix(namespace string) string {
	return namespace + KeySeparator
}
