package pipeline

import core "github.com/aevon-lab/cohort/internal/core/pipeline"

// Re-export pipeline definition types for package-level convenience.
type Definition = core.Definition
type Repository = core.Repository

var (
	Parse                   = core.Parse
	NewFileSystemRepository = core.NewFileSystemRepository
	NewStaticRepository     = core.NewStaticRepository
)
