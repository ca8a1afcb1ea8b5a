package kero

import "os"

// osStat is a thin wrapper so test files don't need to import "os" just for
// this one call used to locate the trailing signature's byte offset.
func osStat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// corruptByteAt overwrites a single byte in an on-disk file, for tests that
// exercise format-invariant detection.
func corruptByteAt(path string, offset int64, b byte) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteAt([]byte{b}, offset); err != nil {
		return err
	}
	return nil
}

// insertByteBeforeTrailer splices a single byte into a closed file
// immediately before its trailing 4-byte signature, for tests that need a
// stray section tag inside the section stream without disturbing the
// trailing signature's position check.
func insertByteBeforeTrailer(path string, b byte) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(contents) < 4 {
		return nil
	}
	cut := len(contents) - 4
	out := make([]byte, 0, len(contents)+1)
	out = append(out, contents[:cut]...)
	out = append(out, b)
	out = append(out, contents[cut:]...)
	return os.WriteFile(path, out, 0o644)
}
