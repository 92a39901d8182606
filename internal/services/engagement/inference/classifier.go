// Package inference connects the relay to the facial-expression and pose
// classifiers. Classifiers are opaque predictors; this package decodes
// their inputs, bounds their latency, and validates their outputs.
package inference

import (
	"context"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
)

// FaceClassifier reports whether an image shows a face and its expression.
type FaceClassifier interface {
	ClassifyFace(ctx context.Context, img Image) (domain.FaceReading, error)
}

// PoseClassifier scores a full pose window, oldest sample first, with the
// probability that the student is engaged.
type PoseClassifier interface {
	ScorePose(ctx context.Context, window []domain.FeatureVector) (float64, error)
}

// Unavailable is the classifier used when no sidecar is configured.
type Unavailable struct{}

// ClassifyFace always fails with CLASSIFIER_UNAVAILABLE.
func (Unavailable) ClassifyFace(context.Context, Image) (domain.FaceReading, error) {
	return domain.FaceReading{}, apperrors.New(apperrors.CodeClassifierUnavailable, "face classifier is not configured")
}

// ScorePose always fails with CLASSIFIER_UNAVAILABLE.
func (Unavailable) ScorePose(context.Context, []domain.FeatureVector) (float64, error) {
	return 0, apperrors.New(apperrors.CodeClassifierUnavailable, "pose classifier is not configured")
}
