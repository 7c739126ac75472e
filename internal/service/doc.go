// Package service contains the application use cases that sit between
// the HTTP handlers and the stores. Services own transactional
// boundaries (see NoteService writing generated content) and the
// ownership checks that keep one user's notes invisible to another.
// They depend on the store interfaces, never on a concrete database.
package service
