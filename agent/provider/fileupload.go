package provider

import (
	"context"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// FileUpload acknowledges attached files. Parsing happens upstream of
// the pipeline, before planning runs, so selecting this provider only
// confirms the attachments were already ingested.
type FileUpload struct{}

func NewFileUpload() *FileUpload { return &FileUpload{} }

func (f *FileUpload) Name() string { return contractx.ProviderFileUpload }

func (f *FileUpload) Execute(ctx context.Context, exec *contractx.ExecContext) (any, error) {
	var names []string
	if exec != nil && exec.Message != nil {
		for _, file := range exec.Message.Files {
			names = append(names, file.Name)
		}
	}
	return map[string]any{"acknowledgedFiles": names}, nil
}
