package ports

// Hasher defines the interface for computing content hashes.
//
//go:generate mockgen -destination=mocks/hasher_mock.go -package=mocks -source=hasher.go
type Hasher interface {
	// HashFile returns the content hash of a regular file.
	HashFile(path string) (uint64, error)
	// HashTree returns a hash over every file below root, in walk order.
	HashTree(root string) (string, error)
}
