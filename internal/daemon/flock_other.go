//go:build !unix

package daemon

// AcquireLock returns an inert lock on non-unix platforms.
func AcquireLock(path string) (*FileLock, error) {
	return &FileLock{path: path}, nil
}

// Release is a no-op on non-unix platforms.
func (l *FileLock) Release() error {
	return nil
}

// IsLocked always returns false on non-unix platforms.
func IsLocked(path string) bool {
	return false
}
