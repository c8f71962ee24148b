package compute

import (
	"context"
	"net/http"

	"github.com/and161185/medrec/internal/apiclient"
	"github.com/and161185/medrec/internal/model"
)

// uploadName is the file name the model endpoints expect.
const uploadName = "image.jpg"

// Classifier resolves diagnosis classifications.
type Classifier = Cache[model.Classification]

// Segmenter resolves segmentation masks.
type Segmenter = Cache[model.Segmentation]

// NewClassifier creates a cache over POST /classify_diagnosis/.
// api must carry the session token source.
func NewClassifier(api *apiclient.Client, opts ...Option) *Classifier {
	return New("classify", remoteFunc[model.Classification](api, "classify", "/classify_diagnosis/"), opts...)
}

// NewSegmenter creates a cache over POST /segmentation/.
func NewSegmenter(api *apiclient.Client, opts ...Option) *Segmenter {
	return New("segment", remoteFunc[model.Segmentation](api, "segment", "/segmentation/"), opts...)
}

func remoteFunc[R any](api *apiclient.Client, op, path string) Func[R] {
	return func(ctx context.Context, content []byte) (R, error) {
		var out R
		err := api.Do(ctx, apiclient.Request{
			Op:     op,
			Method: http.MethodPost,
			Path:   path,
			Auth:   true,
			Multipart: &apiclient.Multipart{
				FileField: "file",
				Filename:  uploadName,
				Content:   content,
			},
		}, &out)
		return out, err
	}
}
