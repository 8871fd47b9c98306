package downgrade

import (
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

// FracAdmittedAtLOPRI returns the fraction of the parent's admitted
// traffic that should ride LOPRI: the share of its volume that
// overflows the HIPRI admission, capped by the LOPRI admission.
func FracAdmittedAtLOPRI(parent *heyppb.FlowInfo, source FVSource, hipriRateLimitBps, lopriRateLimitBps int64) float64 {
	volume := FlowVolume(parent, source)
	if volume <= 0 || lopriRateLimitBps <= 0 {
		return 0
	}
	overflow := volume - hipriRateLimitBps
	if overflow <= 0 {
		return 0
	}
	lopriBps := overflow
	if lopriBps > lopriRateLimitBps {
		lopriBps = lopriRateLimitBps
	}
	admitted := hipriRateLimitBps + lopriRateLimitBps
	if volume < admitted {
		admitted = volume
	}
	return float64(lopriBps) / float64(admitted)
}

// FracAdmittedAtLOPRIToProbe possibly raises lopriFrac to probe for
// latent demand. The probe triggers when demand is ambiguous: the HIPRI
// admission is fully used but demand has not clearly outgrown it
// (hipri_limit <= demand <= demandMultiplier * hipri_limit). The probe
// downgrades at least the smallest child, provided that child fits in
// the LOPRI admission.
func FracAdmittedAtLOPRIToProbe(info *heyppb.AggInfo, source FVSource,
	hipriRateLimitBps, lopriRateLimitBps int64, demandMultiplier, lopriFrac float64) float64 {
	if lopriRateLimitBps == 0 {
		return lopriFrac
	}
	volume := FlowVolume(info.GetParent(), source)
	if volume < hipriRateLimitBps {
		return lopriFrac
	}
	if float64(volume) > demandMultiplier*float64(hipriRateLimitBps) {
		return lopriFrac
	}

	smallest := int64(-1)
	for _, c := range info.GetChildren() {
		v := FlowVolume(c, source)
		if smallest == -1 || v < smallest {
			smallest = v
		}
	}
	if smallest < 0 || smallest > lopriRateLimitBps || volume == 0 {
		return lopriFrac
	}
	probeFrac := float64(smallest) / float64(volume)
	if probeFrac > lopriFrac {
		return probeFrac
	}
	return lopriFrac
}
