package crawler

// Default sample sizes. Profiling samples more rows than structural
// inference needs because distinct counts are sensitive to sample size.
const (
	DefaultSampleSize                = 200
	DefaultProfileSampleSize         = 1000
	DefaultDocumentProfileSampleSize = 500
)

// Options bounds the work a crawl does against the source.
type Options struct {
	// SampleSize is the number of documents sampled per collection for
	// field inference.
	SampleSize int
	// ProfileSampleSize bounds the rows read per column when profiling.
	ProfileSampleSize int
	// DocumentProfileSampleSize is the number of documents sampled per
	// collection for field statistics.
	DocumentProfileSampleSize int
}

// DefaultOptions returns the sample sizes used when none are configured.
func DefaultOptions() Options {
	return Options{
		SampleSize:                DefaultSampleSize,
		ProfileSampleSize:         DefaultProfileSampleSize,
		DocumentProfileSampleSize: DefaultDocumentProfileSampleSize,
	}
}

// withDefaults replaces non-positive sizes with defaults.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SampleSize <= 0 {
		o.SampleSize = d.SampleSize
	}
	if o.ProfileSampleSize <= 0 {
		o.ProfileSampleSize = d.ProfileSampleSize
	}
	if o.DocumentProfileSampleSize <= 0 {
		o.DocumentProfileSampleSize = d.DocumentProfileSampleSize
	}
	return o
}
