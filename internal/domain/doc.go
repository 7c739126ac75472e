// Package domain holds the core entities of the notes system and their
// validation rules, independent of storage and transport.
package domain
