package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/fsutil"
)

// Extension is the file extension the loader reads.
const Extension = ".hcl"

// Loader is the HCL implementation of the config.Loader interface.
type Loader struct {
	namespace string
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a loader whose expressions see namespace as the
// `namespace` variable.
func NewLoader(namespace string) *Loader {
	return &Loader{namespace: namespace}
}

// Load parses every .hcl file under paths. Files are read in sorted order so
// the resulting model is deterministic.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFilesByExtension(paths, Extension)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := config.NewModel()
	parser := hclparse.NewParser()
	evalCtx := evalContext(l.namespace)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		part := config.NewModel()
		for _, j := range root.Jobs {
			job, err := translateJob(ctx, j)
			if err != nil {
				return nil, err
			}
			part.Jobs = append(part.Jobs, job)
		}
		for _, p := range root.Pipelines {
			part.Pipelines = append(part.Pipelines, translatePipeline(p))
		}
		if err := model.Merge(part); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	logger.Debug("HCL loading complete.", "jobs", len(model.Jobs), "pipelines", len(model.Pipelines))
	return model, nil
}
