package conflict

import (
	"github.com/gobwas/glob"

	"github.com/codevcli/codev/internal/models"
)

// Category pattern sets. Root-level and nested variants are both listed
// because '*' does not cross the '/' separator.
var (
	breakingGlobs = compileGlobs(
		"api/**", "**/api/**",
		"interfaces/**", "**/interfaces/**",
		"schema/**", "**/schema/**",
		"migrations/**", "**/migrations/**",
		"*.proto", "**/*.proto",
	)
	trivialGlobs = compileGlobs(
		"docs/**",
		"*.md", "**/*.md",
		"*.txt", "**/*.txt",
		"*.json", "**/*.json",
		"*.yaml", "**/*.yaml",
		"*.yml", "**/*.yml",
		"*.toml", "**/*.toml",
		"LICENSE*",
		".gitignore", "**/.gitignore",
	)
	simpleGlobs = extensionGlobs(
		".go", ".js", ".jsx", ".ts", ".tsx", ".py", ".rb", ".java",
		".rs", ".c", ".h", ".cpp", ".hpp", ".cs", ".sh", ".css", ".html",
	)
	lockArtifactGlobs = basenameGlobs(
		"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "Cargo.lock",
		"Gemfile.lock", "poetry.lock", "composer.lock", "go.sum",
	)
)

// Categorize buckets a repo-relative path by expected resolution difficulty.
// Breaking wins over trivial so that api/schema.json reads as an interface
// change, not a config tweak.
func Categorize(path string) models.Category {
	switch {
	case matchAny(breakingGlobs, path):
		return models.CategoryBreaking
	case matchAny(trivialGlobs, path):
		return models.CategoryTrivial
	case matchAny(simpleGlobs, path):
		return models.CategorySimple
	default:
		return models.CategoryComplex
	}
}

// IsLockArtifact reports whether path is a regenerable dependency lock file,
// the only kind of conflict resolved automatically.
func IsLockArtifact(path string) bool {
	return matchAny(lockArtifactGlobs, path)
}

func matchAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func compileGlobs(patterns ...string) []glob.Glob {
	globs := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		globs[i] = glob.MustCompile(p, '/')
	}
	return globs
}

func extensionGlobs(exts ...string) []glob.Glob {
	patterns := make([]string, 0, len(exts)*2)
	for _, ext := range exts {
		patterns = append(patterns, "*"+ext, "**/*"+ext)
	}
	return compileGlobs(patterns...)
}

func basenameGlobs(names ...string) []glob.Glob {
	patterns := make([]string, 0, len(names)*2)
	for _, name := range names {
		patterns = append(patterns, name, "**/"+name)
	}
	return compileGlobs(patterns...)
}
