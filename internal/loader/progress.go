package loader

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Progress tracks embedding progress
type Progress interface {
	Add(int) error
	Close()
}

type noopProgress struct{}

func (noopProgress) Add(int) error { return nil }
func (noopProgress) Close()        {}

type barProgress struct {
	bar *progressbar.ProgressBar
}

func (p *barProgress) Add(n int) error {
	return p.bar.Add(n)
}

func (p *barProgress) Close() {
	_ = p.bar.Finish()
	fmt.Fprint(os.Stderr, "\r\033[K")
}

func newProgress(enabled bool, total int) Progress {
	if !enabled || total == 0 {
		return noopProgress{}
	}
	return &barProgress{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Embedding emails"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			})),
	}
}
