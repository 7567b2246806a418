package pipeline

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/model"
)

// DefaultHostFixes lists hosts whose scraped links lose the slash after the
// host name.
var DefaultHostFixes = []string{"www.cercind.gov.in"}

// LinkFixer repairs scraped document links.
type LinkFixer struct {
	// HostFixes are hosts that must be followed by "/".
	HostFixes []string
	// BaseURL resolves links without a scheme. Empty leaves them alone.
	BaseURL string
}

// Fix returns the repaired link and whether it changed.
func (f LinkFixer) Fix(link string) (string, bool) {
	orig := link
	link = strings.TrimSpace(link)
	if link == "" || strings.Contains(strings.ToUpper(link), "N/A") {
		return orig, false
	}

	for _, host := range f.HostFixes {
		i := strings.Index(link, host)
		if i < 0 {
			continue
		}
		end := i + len(host)
		if end < len(link) && link[end] != '/' && link[end] != ':' {
			link = link[:end] + "/" + link[end:]
		}
	}

	if f.BaseURL != "" && !strings.Contains(link, "://") {
		if base, err := url.Parse(f.BaseURL); err == nil {
			if ref, err := url.Parse(link); err == nil {
				link = base.ResolveReference(ref).String()
			}
		}
	}
	return link, link != orig
}

// FixLinks repairs every record's document link in place and returns the
// number changed.
func (f LinkFixer) FixLinks(records []model.CaseRecord) int {
	changed := 0
	for i := range records {
		if fixed, ok := f.Fix(records[i].DocumentLink); ok {
			records[i].DocumentLink = fixed
			changed++
		}
	}
	zap.L().Info("pipeline: fixed document links", zap.Int("records", len(records)), zap.Int("changed", changed))
	return changed
}
