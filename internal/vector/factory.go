package vector

import "fmt"

// Backend selects the reader used for index files.
type Backend string

const (
	// BackendFlat reads FAISS flat indexes (IndexFlatIP / IndexFlatL2) in pure Go.
	BackendFlat Backend = "flat"
	// BackendFAISS reads any FAISS index through the FAISS C API.
	// Requires FAISS library and build tag -tags=faiss.
	BackendFAISS Backend = "faiss"
)

// Open loads the index file at path with the given backend.
// Supported backends: "flat" (default), "faiss".
func Open(path string, backend string) (Index, error) {
	switch Backend(backend) {
	case BackendFlat, "":
		idx, err := LoadFlatIndex(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case BackendFAISS:
		idx, err := OpenFAISSIndex(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: flat, faiss)", backend)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	return faissCompiled
}
