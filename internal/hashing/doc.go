// Package hashing provides the content digest used to identify computations
// and tasks.
//
// A Hash is a fixed-size SHA-256 digest built incrementally with a Builder.
// Every field written to a Builder is length-prefixed so that different field
// sequences can never produce the same byte stream. The zero Hash is reserved:
// a task whose execution hash is zero declares that it performs no work.
package hashing
