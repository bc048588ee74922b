// Package binder turns configuration values into registered asset loaders.
//
// A Schema describes, once per configuration type, which named fields of
// that type hold asset references. A Binder applies a Schema to one
// configuration value, builds a loader per reference with a Factory and
// registers every loader on a preload coordinator. The loaders are then
// available by field name, untyped or typed.
package binder
