package stages

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/pipeline/quality"
	"github.com/zerodaily/nexus/internal/storage"
)

// thumbnailVerifier wraps the thumbnails stage body. The collaborator only
// reports refs; the decoded image headers are checked here, against the
// uploaded files, so an undersized or corrupt variant fails the stage
// instead of reaching the publisher.
type thumbnailVerifier struct {
	inner   core.Stage
	objects storage.ObjectStore
}

// VerifyThumbnails decorates a thumbnails stage with artifact verification.
// A nil object store returns the stage unwrapped.
func VerifyThumbnails(inner core.Stage, objects storage.ObjectStore) core.Stage {
	if objects == nil {
		return inner
	}
	return &thumbnailVerifier{inner: inner, objects: objects}
}

func (v *thumbnailVerifier) Execute(ctx context.Context, input *core.StageInput) (*core.StageOutput, error) {
	out, err := v.inner.Execute(ctx, input)
	if err != nil {
		return out, err
	}

	for _, ref := range out.Artifacts {
		if ref.Type != models.ArtifactTypeImage {
			continue
		}
		filename := path.Base(ref.URL)
		data, err := v.objects.Download(ctx, input.PipelineID, input.Stage, filename)
		if err != nil {
			return nil, core.NewRecoverable(CodeBadArtifact,
				fmt.Sprintf("thumbnail variant %s missing from artifact store: %v", filename, err), err)
		}
		probe, err := quality.ProbeThumbnail(bytes.NewReader(data))
		if err != nil {
			return nil, core.NewRecoverable(CodeBadArtifact,
				fmt.Sprintf("thumbnail variant %s rejected: %v", filename, err), err)
		}
		out.Warnings = appendFormatNote(out.Warnings, filename, probe)
	}
	return out, nil
}

// appendFormatNote surfaces webp variants in the stage warnings; the publish
// target transcodes them and the operator digest should say so.
func appendFormatNote(warnings []string, filename string, probe quality.ImageProbe) []string {
	if probe.Format != "webp" {
		return warnings
	}
	return append(warnings, fmt.Sprintf("thumbnail %s is webp (%dx%d), publish target will transcode",
		filename, probe.Width, probe.Height))
}
