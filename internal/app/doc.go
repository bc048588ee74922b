// Package app contains the host side of asset preloading. It turns loaded
// manifests into scopes, drives each scope's preload pass and reports the
// outcome, decoupled from any specific entrypoint like a CLI or server.
package app
