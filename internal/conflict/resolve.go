package conflict

import (
	"context"
	"fmt"
)

// Choice is an interactive decision for one conflicted file.
type Choice string

const (
	ChoiceOurs   Choice = "ours"
	ChoiceTheirs Choice = "theirs"
	ChoiceManual Choice = "manual"
	ChoiceSkip   Choice = "skip"
)

// Chooser picks a resolution for a conflicted path. The CLI implementation
// prompts on stdin; tests supply a canned chooser.
type Chooser interface {
	Choose(path string) (Choice, error)
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(path string) (Choice, error)

func (f ChooserFunc) Choose(path string) (Choice, error) {
	return f(path)
}

// Resolution records what happened to one conflicted file.
type Resolution struct {
	Path     string
	Choice   Choice
	Resolved bool
	Detail   string
}

// AutoResolveTrivial resolves conflicted dependency lock files in the
// repository's current merge by accepting the incoming side and staging the
// result. Lock files are regenerable on either side, which is what makes
// this safe; everything else is left for interactive or manual resolution.
func (e *Engine) AutoResolveTrivial(ctx context.Context) ([]Resolution, error) {
	root := e.git.RepoRoot()
	paths, err := e.git.UnmergedPaths(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list unmerged paths: %w", err)
	}

	var outcomes []Resolution
	for _, path := range paths {
		if !IsLockArtifact(path) {
			continue
		}
		outcomes = append(outcomes, e.applyChoice(ctx, root, path, ChoiceTheirs))
	}
	return outcomes, nil
}

// ResolveInteractive walks every conflicted file in the repository's current
// merge, asks the chooser, and applies the chosen index operation. Manual
// and skipped files are reported unresolved so the caller can hand them to
// an editor.
func (e *Engine) ResolveInteractive(ctx context.Context, chooser Chooser) ([]Resolution, error) {
	root := e.git.RepoRoot()
	paths, err := e.git.UnmergedPaths(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list unmerged paths: %w", err)
	}

	outcomes := make([]Resolution, 0, len(paths))
	for _, path := range paths {
		choice, err := chooser.Choose(path)
		if err != nil {
			return outcomes, fmt.Errorf("choose resolution for %s: %w", path, err)
		}
		outcomes = append(outcomes, e.applyChoice(ctx, root, path, choice))
	}
	return outcomes, nil
}

func (e *Engine) applyChoice(ctx context.Context, root, path string, choice Choice) Resolution {
	res := Resolution{Path: path, Choice: choice}
	switch choice {
	case ChoiceOurs, ChoiceTheirs:
		checkout := e.git.CheckoutOurs
		if choice == ChoiceTheirs {
			checkout = e.git.CheckoutTheirs
		}
		if err := checkout(ctx, root, path); err != nil {
			res.Detail = err.Error()
			return res
		}
		if err := e.git.StageFile(ctx, root, path); err != nil {
			res.Detail = err.Error()
			return res
		}
		res.Resolved = true
		res.Detail = "took " + string(choice)
	case ChoiceManual:
		res.Detail = "left for manual edit"
	case ChoiceSkip:
		res.Detail = "skipped"
	default:
		res.Detail = fmt.Sprintf("unknown choice %q", choice)
	}
	return res
}
