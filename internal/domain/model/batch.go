package model

// MaxBatchFiles is the remote service's per-job file ceiling.
const MaxBatchFiles = 100

// FileRef is one pre-validated file reference handed to the submitter.
// Discovery and type validation happen upstream.
type FileRef struct {
	Path string
	Name string
}

// SplitBatches partitions files into ordered groups of at most limit.
// Order is preserved across and within groups; an empty input yields no
// groups. Each resulting group becomes exactly one remote job.
func SplitBatches(files []FileRef, limit int) [][]FileRef {
	if limit <= 0 {
		limit = MaxBatchFiles
	}
	if len(files) == 0 {
		return nil
	}
	batches := make([][]FileRef, 0, (len(files)+limit-1)/limit)
	for start := 0; start < len(files); start += limit {
		end := start + limit
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}
