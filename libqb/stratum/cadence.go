package stratum

// CadenceOpts overrides the checkpoint interval.
type CadenceOpts struct {
	Every int // if > 0, checkpoint every this many graphs
}

// fineThreshold is the 0.1% interval at which checkpoints switch from every 1% to every 0.1%.
const fineThreshold = 500

// Cadence returns how many graphs are processed between checkpoints of a stratum holding size graphs:
// every 1%, or every 0.1% once that is at least 500 graphs.
func Cadence(size int, opts CadenceOpts) int {
	if opts.Every > 0 {
		return opts.Every
	}
	coarse := max(size/100, 1)
	fine := max(size/1000, 1)
	if fine >= fineThreshold {
		return fine
	}
	return coarse
}
