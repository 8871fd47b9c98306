package alg

// DowngradeFracControllerConfig tunes the feedback loop that converts
// observed HIPRI/LOPRI usage into an adjustment of the downgrade
// fraction.
type DowngradeFracControllerConfig struct {
	// PropGain scales the normalized overage into a fraction change.
	PropGain float64
	// MaxIncPerTick and MaxDecPerTick bound a single adjustment.
	MaxIncPerTick float64
	MaxDecPerTick float64
}

func DefaultDowngradeFracControllerConfig() DowngradeFracControllerConfig {
	return DowngradeFracControllerConfig{
		PropGain:      0.5,
		MaxIncPerTick: 0.05,
		MaxDecPerTick: 0.05,
	}
}

// DowngradeFracController computes per-tick increments to a downgrade
// fraction from observed usage. The increment is monotone in the HIPRI
// overage: it is negative when LOPRI carries traffic while HIPRI sits
// below its admission, and positive when HIPRI exceeds its admission.
type DowngradeFracController struct {
	config DowngradeFracControllerConfig
}

func NewDowngradeFracController(config DowngradeFracControllerConfig) *DowngradeFracController {
	return &DowngradeFracController{config: config}
}

// TrafficFracToDowngrade returns the change to apply to the downgrade
// fraction given the EWMA HIPRI usage, EWMA LOPRI usage, the HIPRI
// admission and the EWMA of the max child usage (used to translate a
// bandwidth error into child-count granularity).
func (c *DowngradeFracController) TrafficFracToDowngrade(hipriBps, lopriBps float64, hipriAdmissionBps int64, maxChildUsageBps float64) float64 {
	total := hipriBps + lopriBps
	if total <= 0 {
		return 0
	}
	overageBps := hipriBps - float64(hipriAdmissionBps)
	if overageBps < 0 && lopriBps <= 0 {
		// Nothing is downgraded and HIPRI has headroom: leave it be.
		return 0
	}

	// Normalize by total usage so the increment is a fraction of
	// traffic, then avoid stepping by less than one child's worth when
	// we know how big children are.
	inc := c.config.PropGain * overageBps / total
	if maxChildUsageBps > 0 {
		childFrac := maxChildUsageBps / total
		if inc > 0 && inc > childFrac {
			inc = childFrac
		}
		if inc < 0 && -inc > childFrac {
			inc = -childFrac
		}
	}
	if inc > c.config.MaxIncPerTick {
		inc = c.config.MaxIncPerTick
	}
	if inc < -c.config.MaxDecPerTick {
		inc = -c.config.MaxDecPerTick
	}
	return inc
}
