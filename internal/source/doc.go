// Package source provides the byte stores asset loaders fetch from.
//
// Every source implements asset.Source. Fetches honour the context they
// are given, so a cancelled preload does not leave fetches running.
//
//   - Memory keeps resources in process memory, mostly for tests and
//     generated content.
//   - Dir serves files below a local directory.
//   - HTTP issues GET requests relative to a base URL.
//   - SocketIO requests resources from a socket.io server.
package source
