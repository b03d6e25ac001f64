package processor

import (
	"context"
	"path"
	"time"

	"github.com/foldkeeper/foldkeeper/internal/domain"
	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

// ReviewDecision is a reviewer's answer for one file. An empty NewPath
// accepts the name proposed by the governing convention.
type ReviewDecision struct {
	Path    string `json:"path"`
	NewPath string `json:"new_path,omitempty"`
}

// Proposal is what the governing convention would do with a file.
type Proposal struct {
	Path           string   `json:"path"`
	NewPath        string   `json:"new_path"`
	ConventionPath string   `json:"convention_path,omitempty"`
	Violations     []string `json:"violations,omitempty"`
}

// Propose returns the canonical location for rel without touching the disk.
func (p *Pipeline) Propose(rel string) (Proposal, error) {
	rel, class := classifyPath(p.root, rel)
	if class != PathValid {
		return Proposal{}, domainerrors.PathInvalidf("path %q is %s", rel, class)
	}

	conv := p.store.Resolve(rel)
	if conv == nil {
		return Proposal{}, domainerrors.NotFoundf("no convention governs %q", rel)
	}

	base, ext := domain.SplitName(path.Base(rel))
	return Proposal{
		Path:           rel,
		NewPath:        path.Join(parentDir(rel), conv.Apply(base, ext)),
		ConventionPath: conv.Path,
		Violations:     conv.Validate(base, ext),
	}, nil
}

// ApplyReview carries out reviewed decisions. Each decision yields exactly one
// result; failures are recorded rather than returned.
func (p *Pipeline) ApplyReview(ctx context.Context, decisions []ReviewDecision) []domain.ProcessingResult {
	claimed := make(map[string]string)
	results := make([]domain.ProcessingResult, 0, len(decisions))

	for _, d := range decisions {
		rel, class := classifyPath(p.root, d.Path)
		if class != PathValid {
			res := newResult(d.Path, "")
			results = append(results, failed(res, d.NewPath, domainerrors.PathInvalidf("path %q is %s", d.Path, class)))
			continue
		}

		conventionPath := ""
		target := d.NewPath
		if target == "" {
			proposal, err := p.Propose(rel)
			if err != nil {
				results = append(results, failed(newResult(rel, ""), "", err))
				continue
			}
			target = proposal.NewPath
			conventionPath = proposal.ConventionPath
		} else if conv := p.store.Resolve(rel); conv != nil {
			conventionPath = conv.Path
		}

		target, targetClass := classifyPath(p.root, target)
		if targetClass != PathValid {
			res := newResult(rel, conventionPath)
			results = append(results, failed(res, d.NewPath, domainerrors.PathInvalidf("target %q is %s", d.NewPath, targetClass)))
			continue
		}

		results = append(results, p.renameOne(ctx, rel, target, conventionPath, claimed))
	}

	p.stats.Record(ctx, results, time.Now())
	stats := p.Stats()
	p.listeners.each(func(l Listener) { l.StatsUpdated(stats) })
	p.logger.Info("review applied", "decisions", len(decisions), "results", len(results))
	return results
}
