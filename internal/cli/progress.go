package cli

import (
	"io"

	"gopkg.in/cheggaaa/pb.v1"

	"github.com/calvinalkan/extsort/pkg/extsort"
)

// progressBars shows one bar per sorter phase.
type progressBars struct {
	out   io.Writer
	bar   *pb.ProgressBar
	phase extsort.Phase
}

func newProgressBars(out io.Writer) *progressBars {
	return &progressBars{out: out}
}

func (p *progressBars) report(pr extsort.Progress) {
	if p.bar == nil || pr.Phase != p.phase {
		p.finish()

		bar := pb.New64(pr.Total)
		bar.Output = p.out
		bar.ShowPercent = true
		bar.ShowTimeLeft = true
		bar.ShowSpeed = true
		bar.Prefix(pr.Phase.String() + " ")
		bar.Start()

		p.bar, p.phase = bar, pr.Phase
	}

	p.bar.Set64(pr.Done)
}

// finish completes the current bar. Safe on a nil receiver.
func (p *progressBars) finish() {
	if p == nil || p.bar == nil {
		return
	}

	p.bar.Finish()
	p.bar = nil
}
