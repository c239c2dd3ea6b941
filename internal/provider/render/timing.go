package render

import "math"

const (
	fps        = 25
	minTarget  = 20.0 // seconds; floor for a social-media reel
	maxTarget  = 30.0
	audioLead  = 1.0 // breathing room before the voice-over starts
	minFrames  = 100 // farm minimum chunk size
	numWorkers = 9
	minRate    = 0.5 // playback bounds the farm can composite cleanly
	maxRate    = 2.0
)

// Timing is the composition plan for one final video.
type Timing struct {
	TargetDuration  float64
	AudioPadding    float64
	PlaybackRate    float64
	FramesPerWorker int
	CompositionID   string
}

// ComputeTiming derives the final composition's timing from the measured
// durations of the voice-over and the auto-reel. The reel is sped up or
// slowed down to fill the target window and the audio is centered in it.
func ComputeTiming(audioDuration, videoDuration float64) Timing {
	target := audioDuration + audioLead
	if target < minTarget {
		target = minTarget
	}
	if target > maxTarget {
		target = maxTarget
	}

	padding := (target - audioDuration) / 2
	if padding < 0 {
		padding = 0
	}

	rate := 1.0
	if target > 0 && videoDuration > 0 {
		rate = videoDuration / target
	}
	if rate < minRate {
		rate = minRate
	}
	if rate > maxRate {
		rate = maxRate
	}

	frames := int(math.Floor(target * fps))
	perWorker := int(math.Ceil(float64(frames) / numWorkers))
	if perWorker < minFrames {
		perWorker = minFrames
	}

	return Timing{
		TargetDuration:  target,
		AudioPadding:    padding,
		PlaybackRate:    rate,
		FramesPerWorker: perWorker,
		CompositionID:   "FinalVideoVertical",
	}
}
