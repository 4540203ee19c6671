package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codevcli/codev/internal/models"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		path string
		want models.Category
	}{
		{"api/handler.go", models.CategoryBreaking},
		{"internal/api/routes.go", models.CategoryBreaking},
		{"interfaces/payment.ts", models.CategoryBreaking},
		{"db/migrations/0042_add_index.sql", models.CategoryBreaking},
		{"service.proto", models.CategoryBreaking},
		{"proto/users/v1/users.proto", models.CategoryBreaking},
		{"api/schema.json", models.CategoryBreaking},

		{"README.md", models.CategoryTrivial},
		{"docs/guide/setup.md", models.CategoryTrivial},
		{"notes.txt", models.CategoryTrivial},
		{"config/app.yaml", models.CategoryTrivial},
		{"settings.toml", models.CategoryTrivial},
		{"LICENSE", models.CategoryTrivial},
		{".gitignore", models.CategoryTrivial},
		{"package.json", models.CategoryTrivial},

		{"main.go", models.CategorySimple},
		{"src/auth.js", models.CategorySimple},
		{"pkg/server/server.go", models.CategorySimple},
		{"web/app.tsx", models.CategorySimple},
		{"scripts/deploy.sh", models.CategorySimple},

		{"Makefile", models.CategoryComplex},
		{"assets/logo.png", models.CategoryComplex},
		{"vendor/lib.so", models.CategoryComplex},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.path), "path %s", tt.path)
	}
}

func TestIsLockArtifact(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"package-lock.json", true},
		{"frontend/package-lock.json", true},
		{"yarn.lock", true},
		{"go.sum", true},
		{"backend/go.sum", true},
		{"Cargo.lock", true},
		{"Gemfile.lock", true},
		{"go.mod", false},
		{"src/auth.js", false},
		{"lockfile.json", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLockArtifact(tt.path), "path %s", tt.path)
	}
}
