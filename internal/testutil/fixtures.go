package testutil

import (
	"fmt"
	"io/ioutil"
	"path"
	"runtime"
	"testing"
)

// Fixture reads a file from the testdata directory at the root of the
// repository.
func Fixture(t *testing.T, relPath string) []byte {
	t.Helper()

	p, err := fixturePath(relPath)
	if err != nil {
		t.Fatal(err)
	}

	bytes, err := ioutil.ReadFile(p)
	if err != nil {
		t.Fatalf("error loading fixture %s: %v", p, err)
	}

	return bytes
}

// FixturePath returns the absolute path of a testdata file.
func FixturePath(t *testing.T, relPath string) string {
	t.Helper()

	p, err := fixturePath(relPath)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func fixturePath(relPath string) (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("error loading caller")
	}
	return path.Join(path.Dir(filename), "../../", "testdata", relPath), nil
}
