// Package config defines the format-agnostic manifest model: where assets
// are fetched from and which scenes preload which assets.
//
// Concrete loaders, such as the HCL one in package hclconfig, translate
// their format into a Model. Everything downstream works on the Model only.
package config
