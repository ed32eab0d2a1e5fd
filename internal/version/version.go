// Package version pins the release version baked into the binary.
package version

// Current is the release version, without a leading "v".
const Current = "0.3.1"
