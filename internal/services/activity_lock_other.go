//go:build !unix

package services

import "os"

// lockFile is a no-op where flock is unavailable; writers are serialized in-process
func lockFile(file *os.File) error { return nil }

func unlockFile(file *os.File) error { return nil }
