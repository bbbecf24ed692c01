package text

type DiffResult struct {
	Diff       []byte
	DiffAmount float64
	// Changed lists the 1-based baseline lines that were removed or replaced.
	Changed []int
}

type Differ interface {
	Calculate(baseline []byte, target []byte) (*DiffResult, error)
}
