package extract

import (
	"context"
	"errors"

	"github.com/sparkmindlabs/edugenie/internal/llm"
)

// VisionPrompt is sent with every image to the vision model.
const VisionPrompt = "Extract all readable text from this image. If it is a worksheet or question paper, preserve the question structure."

// Vision reads images through a vision-capable completion endpoint. The reply
// is a natural-language extraction and is used verbatim.
type Vision struct {
	Client llm.VisionExtractor
}

var _ Backend = Vision{}

// Extract implements Backend.
func (v Vision) Extract(ctx context.Context, u Upload) (string, error) {
	if v.Client == nil {
		return "", errors.New("vision client not configured")
	}
	return v.Client.ExtractImage(ctx, VisionPrompt, u.ContentType, u.Data)
}
