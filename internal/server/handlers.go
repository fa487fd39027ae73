package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/feature-tools-mcp/internal/detection"
	"github.com/ironsheep/feature-tools-mcp/internal/geometry"
	"github.com/ironsheep/feature-tools-mcp/internal/imaging"
	"github.com/ironsheep/feature-tools-mcp/internal/pipeline"
	"github.com/ironsheep/feature-tools-mcp/internal/raster"
	"github.com/ironsheep/feature-tools-mcp/internal/warp"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "features_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// and the Go error string as data.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	log := s.log.WithField("tool", params.Name)
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		log.WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	log.Debug("tool succeeded")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads images from cache as needed
//  4. Calls the detection/descriptor/geometry/warp functions
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)

	// Feature Operations
	case "features_detect":
		return s.handleFeaturesDetect(args)
	case "features_match":
		return s.handleFeaturesMatch(args)

	// Geometry Operations
	case "geometry_fit_conic":
		return s.handleGeometryFitConic(args)
	case "geometry_fit_affine":
		return s.handleGeometryFitAffine(args)
	case "geometry_fit_homography":
		return s.handleGeometryFitHomography(args)

	// Resampling Operations
	case "image_warp_affine":
		return s.handleImageWarpAffine(args)
	case "image_register":
		return s.handleImageRegister(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

// === Feature Handlers ===

// detectArgs are the detector options shared by every tool that finds
// keypoints. Zero values select the defaults.
type detectArgs struct {
	Threshold         float64 `json:"threshold"`
	MinArcLength      int     `json:"min_arc_length"`
	RingRadius        int     `json:"ring_radius"`
	SuppressionRadius int     `json:"suppression_radius"`
	MaxKeypoints      int     `json:"max_keypoints"`
	GrayMode          string  `json:"gray_mode"`
}

func (a detectArgs) config() detection.Config {
	cfg := detection.DefaultConfig()
	if a.Threshold > 0 {
		cfg.Threshold = a.Threshold
	}
	if a.MinArcLength > 0 {
		cfg.MinArcLength = a.MinArcLength
	}
	if a.RingRadius > 0 {
		cfg.RingRadius = a.RingRadius
	}
	switch {
	case a.SuppressionRadius > 0:
		cfg.SuppressionRadius = a.SuppressionRadius
	case a.SuppressionRadius < 0:
		cfg.SuppressionRadius = 0
	}
	if a.MaxKeypoints > 0 {
		cfg.MaxKeypoints = a.MaxKeypoints
	}
	return cfg
}

// loadGray loads path through the cache and converts it to intensity.
func (s *Server) loadGray(path, mode string) (image.Image, *raster.Buffer[uint8], error) {
	if path == "" {
		return nil, nil, fmt.Errorf("image path is required")
	}
	gm, err := imaging.ParseGrayMode(mode)
	if err != nil {
		return nil, nil, err
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, nil, err
	}
	gray, err := imaging.ToGray(img, gm)
	if err != nil {
		return nil, nil, err
	}
	return img, gray, nil
}

type featuresDetectArgs struct {
	detectArgs
	Path        string `json:"path"`
	Annotate    bool   `json:"annotate"`
	MarkerColor string `json:"marker_color"`
}

// FeaturesDetectResult lists the keypoints found in one image.
type FeaturesDetectResult struct {
	Width     int                   `json:"width"`
	Height    int                   `json:"height"`
	Count     int                   `json:"count"`
	Keypoints []detection.Keypoint  `json:"keypoints"`
	Annotated *imaging.EncodedImage `json:"annotated,omitempty"`
}

func (s *Server) handleFeaturesDetect(args json.RawMessage) (interface{}, error) {
	var a featuresDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, gray, err := s.loadGray(a.Path, a.GrayMode)
	if err != nil {
		return nil, err
	}

	kps, err := detection.Detect(gray, a.config())
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"tool": "features_detect", "keypoints": len(kps)}).Debug("detected")

	result := &FeaturesDetectResult{
		Width:     gray.Width,
		Height:    gray.Height,
		Count:     len(kps),
		Keypoints: kps,
	}
	if a.Annotate {
		marked, err := imaging.DrawKeypoints(img, kps, a.MarkerColor)
		if err != nil {
			return nil, err
		}
		if result.Annotated, err = imaging.EncodePNG(marked, 1.0); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// matchArgs configure descriptor matching. Zero values select the defaults.
type matchArgs struct {
	detectArgs
	Reference      string  `json:"reference"`
	Moving         string  `json:"moving"`
	MaxDistance    float64 `json:"max_distance"`
	AmbiguityRatio float64 `json:"ambiguity_ratio"`
	MutualCheck    bool    `json:"mutual_check"`
	Steered        bool    `json:"steered"`
}

func (a matchArgs) config() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Detect = a.detectArgs.config()
	cfg.Describe.Steered = a.Steered
	if a.MaxDistance > 0 {
		cfg.Match.MaxDistance = a.MaxDistance
	}
	if a.AmbiguityRatio > 0 {
		cfg.Match.AmbiguityRatio = a.AmbiguityRatio
	}
	cfg.Match.MutualCheck = a.MutualCheck
	cfg.Warp.Workers = runtime.NumCPU()
	return cfg
}

// MatchEntry is one moving-to-reference keypoint match.
type MatchEntry struct {
	MovingIndex    int            `json:"moving_index"`
	ReferenceIndex int            `json:"reference_index"`
	Moving         geometry.Point `json:"moving"`
	Reference      geometry.Point `json:"reference"`
	Distance       float64        `json:"distance"`
}

// FeaturesMatchResult lists the matches between two images.
type FeaturesMatchResult struct {
	ReferenceKeypoints int          `json:"reference_keypoints"`
	MovingKeypoints    int          `json:"moving_keypoints"`
	Count              int          `json:"count"`
	Matches            []MatchEntry `json:"matches"`
}

func (s *Server) handleFeaturesMatch(args json.RawMessage) (interface{}, error) {
	var a matchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	r, err := pipeline.New(a.config(), s.log)
	if err != nil {
		return nil, err
	}

	_, refGray, err := s.loadGray(a.Reference, a.GrayMode)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	_, movGray, err := s.loadGray(a.Moving, a.GrayMode)
	if err != nil {
		return nil, fmt.Errorf("moving: %w", err)
	}
	ref, err := r.Features(refGray)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	mov, err := r.Features(movGray)
	if err != nil {
		return nil, fmt.Errorf("moving: %w", err)
	}

	matches := r.Match(mov, ref)
	pairs := pipeline.Pairs(matches, mov.Keypoints, ref.Keypoints)
	entries := make([]MatchEntry, len(matches))
	for i, m := range matches {
		entries[i] = MatchEntry{
			MovingIndex:    m.QueryIndex,
			ReferenceIndex: m.TrainIndex,
			Moving:         pairs[i].Src,
			Reference:      pairs[i].Dst,
			Distance:       m.Distance,
		}
	}
	s.log.WithFields(logrus.Fields{"tool": "features_match", "matches": len(matches)}).Debug("matched")

	return &FeaturesMatchResult{
		ReferenceKeypoints: len(ref.Keypoints),
		MovingKeypoints:    len(mov.Keypoints),
		Count:              len(entries),
		Matches:            entries,
	}, nil
}

// === Geometry Handlers ===

type fitConicArgs struct {
	Points []geometry.Point `json:"points"`
	Method string           `json:"method"`
}

// FitConicResult holds a fitted conic and, for ellipses, its geometry.
type FitConicResult struct {
	Conic        geometry.Conic    `json:"conic"`
	Method       string            `json:"method"`
	IsEllipse    bool              `json:"is_ellipse"`
	Ellipse      *geometry.Ellipse `json:"ellipse,omitempty"`
	MeanResidual float64           `json:"mean_residual"`
}

func (s *Server) handleGeometryFitConic(args json.RawMessage) (interface{}, error) {
	var a fitConicArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg := geometry.DefaultConicConfig()
	var err error
	if cfg.Method, err = geometry.ParseConicMethod(a.Method); err != nil {
		return nil, err
	}
	conic, err := geometry.FitConicWith(a.Points, cfg)
	if err != nil {
		return nil, err
	}

	var sum float64
	for _, p := range a.Points {
		sum += math.Abs(conic.Residual(p))
	}
	result := &FitConicResult{
		Conic:        conic,
		Method:       cfg.Method.String(),
		MeanResidual: sum / float64(len(a.Points)),
	}
	if e, err := conic.Ellipse(); err == nil {
		result.IsEllipse = true
		result.Ellipse = &e
	}
	return result, nil
}

type fitAffineArgs struct {
	Pairs           []geometry.PointPair `json:"pairs"`
	RANSAC          bool                 `json:"ransac"`
	InlierThreshold float64              `json:"inlier_threshold"`
	Iterations      int                  `json:"iterations"`
	Seed            *int64               `json:"seed"`
}

// FitAffineResult holds a fitted affine transform.
type FitAffineResult struct {
	Matrix    [6]float64      `json:"matrix"`
	Transform geometry.Affine `json:"transform"`
	Inliers   []int           `json:"inliers,omitempty"`
	MeanError float64         `json:"mean_error"`
}

func (s *Server) handleGeometryFitAffine(args json.RawMessage) (interface{}, error) {
	var a fitAffineArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	if !a.RANSAC {
		t, err := geometry.FitAffine(a.Pairs)
		if err != nil {
			return nil, err
		}
		return &FitAffineResult{
			Matrix:    t.Matrix(),
			Transform: t,
			MeanError: geometry.ReprojectionError(a.Pairs, t),
		}, nil
	}

	cfg := geometry.DefaultRANSACConfig()
	if a.InlierThreshold > 0 {
		cfg.Threshold = a.InlierThreshold
	}
	if a.Iterations > 0 {
		cfg.Iterations = a.Iterations
	}
	if a.Seed != nil {
		cfg.Seed = *a.Seed
	}
	t, inliers, err := geometry.FitAffineRANSAC(a.Pairs, cfg)
	if err != nil {
		return nil, err
	}
	inlierPairs := make([]geometry.PointPair, len(inliers))
	for i, idx := range inliers {
		inlierPairs[i] = a.Pairs[idx]
	}
	return &FitAffineResult{
		Matrix:    t.Matrix(),
		Transform: t,
		Inliers:   inliers,
		MeanError: geometry.ReprojectionError(inlierPairs, t),
	}, nil
}

type fitHomographyArgs struct {
	Pairs []geometry.PointPair `json:"pairs"`
}

// FitHomographyResult holds a fitted projective transform.
type FitHomographyResult struct {
	Matrix    geometry.Homography `json:"matrix"`
	MeanError float64             `json:"mean_error"`
}

func (s *Server) handleGeometryFitHomography(args json.RawMessage) (interface{}, error) {
	var a fitHomographyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	h, err := geometry.FitHomography(a.Pairs)
	if err != nil {
		return nil, err
	}

	var sum float64
	for _, p := range a.Pairs {
		q, ok := h.Apply(p.Src)
		if !ok {
			return nil, fmt.Errorf("homography sends source point (%g, %g) to infinity", p.Src.X, p.Src.Y)
		}
		sum += q.Distance(p.Dst)
	}
	return &FitHomographyResult{
		Matrix:    h,
		MeanError: sum / float64(len(a.Pairs)),
	}, nil
}

// === Resampling Handlers ===

type warpAffineArgs struct {
	Path          string    `json:"path"`
	Matrix        []float64 `json:"matrix"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Interpolation string    `json:"interpolation"`
	Edge          string    `json:"edge"`
	Fill          float64   `json:"fill"`
	OutputPath    string    `json:"output_path"`
}

// WarpResult is a resampled image, inline and optionally saved.
type WarpResult struct {
	imaging.EncodedImage
	SavedTo string `json:"saved_to,omitempty"`
}

func (s *Server) handleImageWarpAffine(args json.RawMessage) (interface{}, error) {
	var a warpAffineArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Matrix) != 6 {
		return nil, fmt.Errorf("matrix must have 6 elements, got %d", len(a.Matrix))
	}
	var m [6]float64
	copy(m[:], a.Matrix)

	cfg := warp.DefaultConfig()
	var err error
	if cfg.Interpolation, err = warp.ParseInterpolation(a.Interpolation); err != nil {
		return nil, err
	}
	if cfg.Edge, err = warp.ParseEdge(a.Edge); err != nil {
		return nil, err
	}
	cfg.Fill = a.Fill
	cfg.Workers = runtime.NumCPU()

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	src, err := imaging.ToBuffer(img)
	if err != nil {
		return nil, err
	}
	if a.Width == 0 {
		a.Width = src.Width
	}
	if a.Height == 0 {
		a.Height = src.Height
	}

	dst, err := warp.Resample(src, geometry.FromMatrix(m), a.Width, a.Height, cfg)
	if err != nil {
		return nil, err
	}
	return s.imageResult(dst, a.OutputPath, true)
}

// imageResult converts buf to an image, optionally saves it and optionally
// encodes it inline.
func (s *Server) imageResult(buf *raster.Buffer[uint8], outputPath string, inline bool) (*WarpResult, error) {
	out, err := imaging.ToImage(buf)
	if err != nil {
		return nil, err
	}
	result := &WarpResult{}
	if inline {
		enc, err := imaging.EncodePNG(out, 1.0)
		if err != nil {
			return nil, err
		}
		result.EncodedImage = *enc
	} else {
		result.Width, result.Height = buf.Width, buf.Height
	}
	if outputPath != "" {
		if err := imaging.Save(outputPath, out); err != nil {
			return nil, err
		}
		result.SavedTo = outputPath
	}
	return result, nil
}

type registerArgs struct {
	matchArgs
	InlierThreshold float64 `json:"inlier_threshold"`
	ReturnImage     *bool   `json:"return_image"`
	OutputPath      string  `json:"output_path"`
}

// RegisterResult describes how the moving image was aligned.
type RegisterResult struct {
	Matrix             [6]float64          `json:"matrix"`
	Transform          geometry.Affine     `json:"transform"`
	ReferenceKeypoints int                 `json:"reference_keypoints"`
	MovingKeypoints    int                 `json:"moving_keypoints"`
	Matches            int                 `json:"matches"`
	Inliers            int                 `json:"inliers"`
	MeanError          float64             `json:"mean_error"`
	Quality            *imaging.Comparison `json:"quality"`
	Aligned            *WarpResult         `json:"aligned"`
}

func (s *Server) handleImageRegister(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a registerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg := a.matchArgs.config()
	if a.InlierThreshold > 0 {
		cfg.RANSAC.Threshold = a.InlierThreshold
	}
	r, err := pipeline.New(cfg, s.log.WithField("tool", "image_register"))
	if err != nil {
		return nil, err
	}

	_, refGray, err := s.loadGray(a.Reference, a.GrayMode)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	movImg, movGray, err := s.loadGray(a.Moving, a.GrayMode)
	if err != nil {
		return nil, fmt.Errorf("moving: %w", err)
	}

	res, err := r.Register(ctx, refGray, movGray)
	if err != nil {
		return nil, err
	}

	// Resample the moving image in color; the pipeline only aligned intensity.
	movColor, err := imaging.ToBuffer(movImg)
	if err != nil {
		return nil, err
	}
	aligned, err := warp.Resample(movColor, res.Transform, refGray.Width, refGray.Height, cfg.Warp)
	if err != nil {
		return nil, err
	}
	inline := a.ReturnImage == nil || *a.ReturnImage
	out, err := s.imageResult(aligned, a.OutputPath, inline)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{
		Matrix:             res.Transform.Matrix(),
		Transform:          res.Transform,
		ReferenceKeypoints: len(res.Reference.Keypoints),
		MovingKeypoints:    len(res.Moving.Keypoints),
		Matches:            len(res.Matches),
		Inliers:            len(res.Inliers),
		MeanError:          res.MeanError,
		Quality:            res.Quality,
		Aligned:            out,
	}, nil
}
