package analysis

import (
	"github.com/spf13/afero"

	"github.com/d-singer/batdetect2-CLI/internal/conf"
	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/output"
	"github.com/d-singer/batdetect2-CLI/internal/resume"
)

// SiteProgress describes how far a site has been processed, as recorded in
// its output file.
type SiteProgress struct {
	SiteID     string
	OutputPath string
	Discovered int
	Processed  int
	Pending    int
	Empty      bool
	// ResumeErr is set when the output could only be read partially.
	ResumeErr error
}

// Inspect reports per-site progress without running the model or taking
// output locks. The committed prefix of each output is read, so a batch
// being written by a concurrent run is not counted.
func Inspect(fsys afero.Fs, settings *conf.Settings) ([]SiteProgress, error) {
	sites, err := discovery.Discover(fsys, settings.Input.AudioRoot, settings.Input.Extensions)
	if err != nil {
		return nil, err
	}

	progress := make([]SiteProgress, 0, len(sites))
	for _, site := range sites {
		p := SiteProgress{
			SiteID:     site.ID,
			OutputPath: output.Path(settings.Output.Dir, site.ID),
			Discovered: len(site.Files),
			Empty:      site.Empty,
		}
		if !site.Empty {
			processed, rerr := resume.LoadProcessed(p.OutputPath)
			p.ResumeErr = rerr
			pending, skipped := resume.Filter(site, processed)
			p.Processed = skipped
			p.Pending = len(pending)
		}
		progress = append(progress, p)
	}
	return progress, nil
}
