//go:build windows

package blockdev

// Mount detection is not implemented on Windows; raw device access is
// refused by geometry probing anyway.
func mountpointOf(string) string { return "" }
