package requirement

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/frederic-klein/yapp/internal/dist"
)

// VersionFinder looks up the newest known version of a package.
type VersionFinder interface {
	FindLatest(name string) (string, bool)
}

// Constrain fills in a constraint for every unconstrained version request:
// a caret range on the latest version the finder knows, otherwise "*".
// Chosen versions are reported to w.
func Constrain(reqs []Requirement, finder VersionFinder, w io.Writer) []Requirement {
	out := make([]Requirement, len(reqs))
	for i, req := range reqs {
		if req.Unconstrained() {
			req.Constraint = dist.AnyConstraint
			if finder != nil {
				if version, ok := finder.FindLatest(req.Name); ok {
					req.Constraint = "^" + version
					fmt.Fprintf(w, "Using version %s for %s\n", color.GreenString(req.Constraint), color.CyanString(req.Name))
				}
			}
		}
		out[i] = req
	}
	return out
}
