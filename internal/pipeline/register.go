// Package pipeline chains the feature toolkit into two-image registration:
// detect keypoints in both images, describe them with BRIEF, match the moving
// image against the reference, fit an affine transform with RANSAC and
// resample the moving image into the reference frame.
//
// Every stage is the public function of its own package; this package only
// wires them together, logs progress and reports alignment quality.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/feature-tools-mcp/internal/descriptor"
	"github.com/ironsheep/feature-tools-mcp/internal/detection"
	"github.com/ironsheep/feature-tools-mcp/internal/geometry"
	"github.com/ironsheep/feature-tools-mcp/internal/imaging"
	"github.com/ironsheep/feature-tools-mcp/internal/logging"
	"github.com/ironsheep/feature-tools-mcp/internal/matching"
	"github.com/ironsheep/feature-tools-mcp/internal/raster"
	"github.com/ironsheep/feature-tools-mcp/internal/warp"
)

// Config bundles the settings of every stage.
type Config struct {
	Detect   detection.Config       `json:"detect"`
	Describe descriptor.BRIEFConfig `json:"describe"`
	Match    matching.Config        `json:"match"`
	RANSAC   geometry.RANSACConfig  `json:"ransac"`
	Warp     warp.Config            `json:"warp"`
}

// DefaultConfig returns the default of each stage.
func DefaultConfig() Config {
	return Config{
		Detect:   detection.DefaultConfig(),
		Describe: descriptor.DefaultBRIEFConfig(),
		Match:    matching.DefaultConfig(),
		RANSAC:   geometry.DefaultRANSACConfig(),
		Warp:     warp.DefaultConfig(),
	}
}

// Validate checks every stage that has its own validation.
func (c Config) Validate() error {
	if err := c.Detect.Validate(); err != nil {
		return err
	}
	if err := c.Describe.Validate(); err != nil {
		return err
	}
	return c.Match.Validate()
}

// Features are the keypoints of one image and their descriptors, index
// aligned.
type Features struct {
	Keypoints   []detection.Keypoint
	Descriptors []descriptor.Binary
}

// Result is the outcome of registering a moving image onto a reference.
type Result struct {
	// Transform maps moving-image pixel coordinates to reference coordinates.
	Transform geometry.Affine `json:"transform"`

	Reference Features `json:"-"`
	Moving    Features `json:"-"`

	// Matches pair moving keypoints (QueryIndex) with reference keypoints
	// (TrainIndex).
	Matches []matching.Correspondence `json:"-"`

	// Inliers indexes into Matches.
	Inliers []int `json:"inliers"`

	// MeanError is the mean reprojection error of the inlier matches.
	MeanError float64 `json:"mean_error"`

	// Aligned is the moving image resampled into the reference frame.
	Aligned *raster.Buffer[uint8] `json:"-"`

	// Quality compares Aligned with the reference where the moving image
	// actually covers it.
	Quality *imaging.Comparison `json:"quality"`
}

// Registrar runs the registration pipeline with a fixed configuration. The
// BRIEF pattern is generated once, so a Registrar is cheap to reuse and safe
// for concurrent use.
type Registrar struct {
	cfg   Config
	brief *descriptor.BRIEF
	log   logrus.FieldLogger
}

// New validates cfg and prepares a Registrar. A nil logger discards output.
func New(cfg Config, log logrus.FieldLogger) (*Registrar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	brief, err := descriptor.NewBRIEF(cfg.Describe)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Registrar{cfg: cfg, brief: brief, log: log}, nil
}

// Config returns the configuration the Registrar was built with.
func (r *Registrar) Config() Config {
	return r.cfg
}

// Features detects and describes keypoints in a single-channel buffer.
func (r *Registrar) Features(buf *raster.Buffer[uint8]) (Features, error) {
	kps, err := detection.Detect(buf, r.cfg.Detect)
	if err != nil {
		return Features{}, fmt.Errorf("detect: %w", err)
	}
	descs, err := r.brief.Describe(buf, kps)
	if err != nil {
		return Features{}, fmt.Errorf("describe: %w", err)
	}
	return Features{Keypoints: kps, Descriptors: descs}, nil
}

// Match pairs every query descriptor with its best train descriptor under the
// configured distance limit and ratio test.
func (r *Registrar) Match(query, train Features) []matching.Correspondence {
	return matching.Match(query.Descriptors, train.Descriptors, r.cfg.Match)
}

// Register aligns moving onto ref. Both must be single-channel.
//
// The returned error wraps the failing stage: fewer than three matches
// surface as geometry.ErrUnderdetermined, no usable consensus as
// geometry.ErrNoConsensus. ctx is checked between stages.
func (r *Registrar) Register(ctx context.Context, ref, moving *raster.Buffer[uint8]) (*Result, error) {
	refFeat, err := r.Features(ref)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	movFeat, err := r.Features(moving)
	if err != nil {
		return nil, fmt.Errorf("moving: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"reference_keypoints": len(refFeat.Keypoints),
		"moving_keypoints":    len(movFeat.Keypoints),
	}).Debug("features extracted")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := r.Match(movFeat, refFeat)
	r.log.WithField("matches", len(matches)).Debug("descriptors matched")

	pairs := Pairs(matches, movFeat.Keypoints, refFeat.Keypoints)
	transform, inliers, err := geometry.FitAffineRANSAC(pairs, r.cfg.RANSAC)
	if err != nil {
		return nil, fmt.Errorf("fit transform from %d matches: %w", len(matches), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inlierPairs := make([]geometry.PointPair, len(inliers))
	for i, idx := range inliers {
		inlierPairs[i] = pairs[idx]
	}
	meanErr := geometry.ReprojectionError(inlierPairs, transform)

	aligned, err := warp.Resample(moving, transform, ref.Width, ref.Height, r.cfg.Warp)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	quality, err := r.quality(ref, moving, aligned, transform)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"matches":    len(matches),
		"inliers":    len(inliers),
		"mean_error": meanErr,
		"similarity": quality.SimilarityScore,
	}).Info("registration complete")

	return &Result{
		Transform: transform,
		Reference: refFeat,
		Moving:    movFeat,
		Matches:   matches,
		Inliers:   inliers,
		MeanError: meanErr,
		Aligned:   aligned,
		Quality:   quality,
	}, nil
}

// quality compares aligned with ref over the footprint of the moving image.
func (r *Registrar) quality(ref, moving, aligned *raster.Buffer[uint8], transform geometry.Affine) (*imaging.Comparison, error) {
	cover, err := raster.New[uint8](moving.Width, moving.Height, 1)
	if err != nil {
		return nil, err
	}
	cover.Fill(255)
	mask, err := warp.Resample(cover, transform, ref.Width, ref.Height, warp.Config{
		Interpolation: warp.Nearest,
		Edge:          warp.EdgeConstant,
		Workers:       r.cfg.Warp.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("coverage mask: %w", err)
	}
	return imaging.Compare(ref, aligned, mask)
}

// Pairs turns correspondences into point pairs from query keypoints to train
// keypoints, in correspondence order.
func Pairs(matches []matching.Correspondence, query, train []detection.Keypoint) []geometry.PointPair {
	pairs := make([]geometry.PointPair, len(matches))
	for i, m := range matches {
		q, t := query[m.QueryIndex], train[m.TrainIndex]
		pairs[i] = geometry.PointPair{
			Src: geometry.Point{X: float64(q.X), Y: float64(q.Y)},
			Dst: geometry.Point{X: float64(t.X), Y: float64(t.Y)},
		}
	}
	return pairs
}
