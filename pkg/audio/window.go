package audio

const bytesPerMB = 1024 * 1024

// DefaultSecondsPerMB approximates how many seconds of MP3 audio one MiB holds.
// True duration is never decoded; the estimate only drives where segments are cut.
const DefaultSecondsPerMB = 24.0

// Window is one time range of the source audio, in seconds.
type Window struct {
	Index int
	Start float64
	End   float64
}

// Duration returns the length of the window in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// ChunkCount returns how many chunks a file of size bytes needs so that each one
// stays under threshold. Files at or below threshold need one.
func ChunkCount(size, threshold int64) int {
	if threshold <= 0 || size <= threshold {
		return 1
	}
	return int((size + threshold - 1) / threshold)
}

// EstimateDuration estimates the playing time of size bytes of audio.
func EstimateDuration(size int64, secondsPerMB float64) float64 {
	return float64(size) / bytesPerMB * secondsPerMB
}

// PlanWindows splits the estimated duration of a file into contiguous, equal,
// non-overlapping windows. It returns nil when the file does not need splitting.
func PlanWindows(size, threshold int64, secondsPerMB float64) []Window {
	count := ChunkCount(size, threshold)
	if count <= 1 {
		return nil
	}

	total := EstimateDuration(size, secondsPerMB)
	per := total / float64(count)

	windows := make([]Window, count)
	for i := range windows {
		windows[i] = Window{
			Index: i,
			Start: float64(i) * per,
			End:   float64(i+1) * per,
		}
	}
	windows[count-1].End = total
	return windows
}
