package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/feature-tools-mcp/internal/geometry"
)

// createTextureFile writes a size x size grayscale PNG cut at (x0, y0) from
// a deterministic noise texture and returns its path.
func createTextureFile(t *testing.T, name string, x0, y0, size int) string {
	t.Helper()
	const side = 120
	noise := image.NewGray(image.Rect(0, 0, side, side))
	state := uint32(12345)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			state = state*1664525 + 1013904223
			noise.SetGray(x, y, color.Gray{Y: uint8(state >> 24)})
		}
	}

	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, noise.GrayAt(x0+x, y0+y))
		}
	}
	return writeImage(t, name, img)
}

// createSquareFile writes a black image with one white square.
func createSquareFile(t *testing.T, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if x >= 20 && x < 40 && y >= 12 && y < 32 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return writeImage(t, name, img)
}

func writeImage(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create image file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode image: %v", err)
	}
	return path
}

// callTool invokes a tool through tools/call and decodes the text content
// into out. It fails the test on any error response.
func callTool(t *testing.T, s *Server, name string, args interface{}, out interface{}) {
	t.Helper()
	resp := s.handleRequest(context.Background(), toolRequest(t, name, args))
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("%s failed: %s (%v)", name, resp.Error.Message, resp.Error.Data)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("unexpected content: %v", result["content"])
	}
	text, _ := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("decode %s result: %v\n%s", name, err, text)
	}
}

func toolRequest(t *testing.T, name string, args interface{}) *MCPRequest {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: raw})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params}
}

// callToolError invokes a tool and returns the error data it reports.
func callToolError(t *testing.T, s *Server, name string, args interface{}) string {
	t.Helper()
	resp := s.handleRequest(context.Background(), toolRequest(t, name, args))
	if resp == nil || resp.Error == nil {
		t.Fatalf("%s: expected an error response", name)
	}
	if resp.Error.Code != -32000 {
		t.Errorf("%s: Error.Code got %d, want -32000", name, resp.Error.Code)
	}
	data, _ := resp.Error.Data.(string)
	return data
}

func TestImageLoad(t *testing.T) {
	s := New(nil, "")
	path := createSquareFile(t, "square.png")

	var info struct {
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Format   string `json:"format"`
		Channels int    `json:"channels"`
	}
	callTool(t, s, "image_load", map[string]interface{}{"path": path}, &info)

	if info.Width != 64 || info.Height != 48 {
		t.Errorf("size: got %dx%d, want 64x48", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("format: got %s, want png", info.Format)
	}
	if info.Channels != 4 {
		t.Errorf("channels: got %d, want 4", info.Channels)
	}
}

func TestImageLoad_Errors(t *testing.T) {
	s := New(nil, "")

	if data := callToolError(t, s, "image_load", map[string]interface{}{}); !strings.Contains(data, "path is required") {
		t.Errorf("missing path: got %q", data)
	}
	missing := filepath.Join(t.TempDir(), "nope.png")
	if data := callToolError(t, s, "image_load", map[string]interface{}{"path": missing}); !strings.Contains(data, "failed to load image") {
		t.Errorf("missing file: got %q", data)
	}
}

func TestFeaturesDetect_Square(t *testing.T) {
	s := New(nil, "")
	path := createSquareFile(t, "square.png")

	var result FeaturesDetectResult
	callTool(t, s, "features_detect", map[string]interface{}{
		"path":     path,
		"annotate": true,
	}, &result)

	if result.Width != 64 || result.Height != 48 {
		t.Errorf("size: got %dx%d", result.Width, result.Height)
	}
	if result.Count != len(result.Keypoints) {
		t.Errorf("count %d does not match %d keypoints", result.Count, len(result.Keypoints))
	}
	if result.Count < 4 {
		t.Fatalf("expected a keypoint near each square corner, got %d", result.Count)
	}

	corners := []image.Point{{20, 12}, {39, 12}, {20, 31}, {39, 31}}
	for _, c := range corners {
		found := false
		for _, kp := range result.Keypoints {
			if abs(kp.X-c.X) <= 2 && abs(kp.Y-c.Y) <= 2 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no keypoint near corner %v", c)
		}
	}
	for i := 1; i < len(result.Keypoints); i++ {
		if result.Keypoints[i].Score > result.Keypoints[i-1].Score {
			t.Fatalf("keypoints not sorted by score at %d", i)
		}
	}

	if result.Annotated == nil {
		t.Fatal("expected an annotated image")
	}
	if result.Annotated.MimeType != "image/png" || result.Annotated.ImageBase64 == "" {
		t.Errorf("annotated image: got mime %q, %d bytes", result.Annotated.MimeType, len(result.Annotated.ImageBase64))
	}
}

func TestFeaturesDetect_MaxKeypoints(t *testing.T) {
	s := New(nil, "")
	path := createTextureFile(t, "tex.png", 10, 10, 96)

	var result FeaturesDetectResult
	callTool(t, s, "features_detect", map[string]interface{}{
		"path":          path,
		"max_keypoints": 5,
	}, &result)

	if result.Count != 5 {
		t.Errorf("count: got %d, want 5", result.Count)
	}
	if result.Annotated != nil {
		t.Error("annotated image returned without annotate")
	}
}

func TestFeaturesDetect_Errors(t *testing.T) {
	s := New(nil, "")
	path := createSquareFile(t, "square.png")

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing path", map[string]interface{}{}, "path is required"},
		{"bad gray mode", map[string]interface{}{"path": path, "gray_mode": "sepia"}, "sepia"},
		{"bad marker color", map[string]interface{}{"path": path, "annotate": true, "marker_color": "#GG0000"}, "color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if data := callToolError(t, s, "features_detect", tt.args); !strings.Contains(data, tt.want) {
				t.Errorf("got %q, want it to mention %q", data, tt.want)
			}
		})
	}
}

func TestFeaturesMatch(t *testing.T) {
	s := New(nil, "")
	ref := createTextureFile(t, "ref.png", 10, 10, 96)
	moving := createTextureFile(t, "moving.png", 15, 13, 96)

	var result FeaturesMatchResult
	callTool(t, s, "features_match", map[string]interface{}{
		"reference": ref,
		"moving":    moving,
	}, &result)

	if result.ReferenceKeypoints == 0 || result.MovingKeypoints == 0 {
		t.Fatalf("no keypoints: %d reference, %d moving", result.ReferenceKeypoints, result.MovingKeypoints)
	}
	if result.Count != len(result.Matches) || result.Count < 50 {
		t.Fatalf("expected many matches, got count %d with %d entries", result.Count, len(result.Matches))
	}

	// Most matches should follow the (5, 3) offset between the crops.
	consistent := 0
	for _, m := range result.Matches {
		if m.Reference.X-m.Moving.X == 5 && m.Reference.Y-m.Moving.Y == 3 {
			consistent++
		}
		if m.Distance >= 64 {
			t.Errorf("match %+v exceeds the distance limit", m)
		}
	}
	if consistent < 50 || consistent*2 < result.Count {
		t.Errorf("only %d of %d matches follow the crop offset", consistent, result.Count)
	}
}

func TestFeaturesMatch_MissingImage(t *testing.T) {
	s := New(nil, "")
	ref := createTextureFile(t, "ref.png", 10, 10, 96)

	if data := callToolError(t, s, "features_match", map[string]interface{}{"reference": ref}); !strings.Contains(data, "moving") {
		t.Errorf("got %q, want it to mention the moving image", data)
	}
}

func TestGeometryFitConic(t *testing.T) {
	s := New(nil, "")

	// Ellipse centred at (10, -4) with semi-axes 6 and 3, rotated 30 degrees.
	cx, cy, a, b, theta := 10.0, -4.0, 6.0, 3.0, math.Pi/6
	var points []geometry.Point
	for i := 0; i < 12; i++ {
		u := 2 * math.Pi * float64(i) / 12
		x, y := a*math.Cos(u), b*math.Sin(u)
		points = append(points, geometry.Point{
			X: cx + x*math.Cos(theta) - y*math.Sin(theta),
			Y: cy + x*math.Sin(theta) + y*math.Cos(theta),
		})
	}

	var result FitConicResult
	callTool(t, s, "geometry_fit_conic", map[string]interface{}{"points": points}, &result)

	if !result.IsEllipse || result.Ellipse == nil {
		t.Fatalf("expected an ellipse, got %+v", result)
	}
	e := result.Ellipse
	if math.Abs(e.Center.X-cx) > 1e-6 || math.Abs(e.Center.Y-cy) > 1e-6 {
		t.Errorf("center: got %+v, want (%v, %v)", e.Center, cx, cy)
	}
	if math.Abs(e.SemiMajor-a) > 1e-6 || math.Abs(e.SemiMinor-b) > 1e-6 {
		t.Errorf("axes: got %v, %v, want %v, %v", e.SemiMajor, e.SemiMinor, a, b)
	}
	if result.MeanResidual > 1e-9 {
		t.Errorf("mean residual: got %g", result.MeanResidual)
	}
}

func TestGeometryFitConic_Methods(t *testing.T) {
	s := New(nil, "")
	var points []geometry.Point
	for i := 0; i < 16; i++ {
		u := 2 * math.Pi * float64(i) / 16
		points = append(points, geometry.Point{X: 3 + 5*math.Cos(u), Y: 1 + 2*math.Sin(u)})
	}

	for _, method := range []string{"least_squares", "iterative_reweight", "taubin", "renormalization", "fns"} {
		t.Run(method, func(t *testing.T) {
			var result FitConicResult
			callTool(t, s, "geometry_fit_conic", map[string]interface{}{
				"points": points,
				"method": method,
			}, &result)
			if result.Method != method {
				t.Errorf("method: got %q, want %q", result.Method, method)
			}
			if !result.IsEllipse || result.Ellipse == nil {
				t.Fatalf("expected an ellipse, got %+v", result)
			}
			if math.Abs(result.Ellipse.SemiMajor-5) > 1e-6 || math.Abs(result.Ellipse.SemiMinor-2) > 1e-6 {
				t.Errorf("axes: got %v, %v, want 5, 2", result.Ellipse.SemiMajor, result.Ellipse.SemiMinor)
			}
		})
	}

	if data := callToolError(t, s, "geometry_fit_conic", map[string]interface{}{
		"points": points,
		"method": "hyper",
	}); !strings.Contains(data, "hyper") {
		t.Errorf("unknown method: got %q", data)
	}
}

func TestGeometryFitConic_TooFewPoints(t *testing.T) {
	s := New(nil, "")
	points := []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	if data := callToolError(t, s, "geometry_fit_conic", map[string]interface{}{"points": points}); data == "" {
		t.Error("expected error data")
	}
}

func TestGeometryFitAffine(t *testing.T) {
	s := New(nil, "")
	want := geometry.Affine{A: 1.2, B: -0.3, TX: 4, C: 0.2, D: 0.9, TY: -7}

	var pairs []geometry.PointPair
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			p := geometry.Point{X: float64(10 * x), Y: float64(7 * y)}
			pairs = append(pairs, geometry.PointPair{Src: p, Dst: want.Apply(p)})
		}
	}

	t.Run("least squares", func(t *testing.T) {
		var result FitAffineResult
		callTool(t, s, "geometry_fit_affine", map[string]interface{}{"pairs": pairs}, &result)
		assertMatrix(t, result.Matrix, want.Matrix(), 1e-9)
		if len(result.Inliers) != 0 {
			t.Errorf("unexpected inliers without ransac: %v", result.Inliers)
		}
		if result.Transform != geometry.FromMatrix(result.Matrix) {
			t.Errorf("transform %+v does not match matrix %v", result.Transform, result.Matrix)
		}
	})

	t.Run("ransac", func(t *testing.T) {
		noisy := append([]geometry.PointPair(nil), pairs...)
		noisy[2].Dst = geometry.Point{X: 500, Y: -500}
		noisy[9].Dst = geometry.Point{X: -300, Y: 80}

		var result FitAffineResult
		callTool(t, s, "geometry_fit_affine", map[string]interface{}{
			"pairs":  noisy,
			"ransac": true,
			"seed":   7,
		}, &result)
		assertMatrix(t, result.Matrix, want.Matrix(), 1e-6)
		if len(result.Inliers) != len(noisy)-2 {
			t.Errorf("inliers: got %d, want %d", len(result.Inliers), len(noisy)-2)
		}
		for _, idx := range result.Inliers {
			if idx == 2 || idx == 9 {
				t.Errorf("outlier %d reported as inlier", idx)
			}
		}
	})
}

func assertMatrix(t *testing.T, got, want [6]float64, tol float64) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("matrix: got %v, want %v", got, want)
		}
	}
}

func TestGeometryFitHomography(t *testing.T) {
	s := New(nil, "")
	want := geometry.Homography{1.1, 0.05, 3, -0.02, 0.95, -2, 1e-3, -5e-4, 1}

	var pairs []geometry.PointPair
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			p := geometry.Point{X: float64(30 * x), Y: float64(25 * y)}
			q, _ := want.Apply(p)
			pairs = append(pairs, geometry.PointPair{Src: p, Dst: q})
		}
	}

	var result FitHomographyResult
	callTool(t, s, "geometry_fit_homography", map[string]interface{}{"pairs": pairs}, &result)
	for i := range want {
		if math.Abs(result.Matrix[i]-want[i]) > 1e-9 {
			t.Fatalf("matrix: got %v, want %v", result.Matrix, want)
		}
	}
	if result.MeanError > 1e-6 {
		t.Errorf("MeanError: got %g, want ~0", result.MeanError)
	}

	msg := callToolError(t, s, "geometry_fit_homography", map[string]interface{}{"pairs": pairs[:3]})
	if !strings.Contains(msg, "4 pairs") {
		t.Errorf("error: got %q, want mention of 4 pairs", msg)
	}
}

func TestImageWarpAffine(t *testing.T) {
	s := New(nil, "")
	path := createSquareFile(t, "square.png")
	out := filepath.Join(t.TempDir(), "warped.png")

	var result WarpResult
	callTool(t, s, "image_warp_affine", map[string]interface{}{
		"path":          path,
		"matrix":        []float64{1, 0, 10, 0, 1, 5},
		"interpolation": "nearest",
		"output_path":   out,
	}, &result)

	if result.Width != 64 || result.Height != 48 {
		t.Errorf("size: got %dx%d, want 64x48", result.Width, result.Height)
	}
	if result.SavedTo != out {
		t.Errorf("saved_to: got %q, want %q", result.SavedTo, out)
	}
	if result.ImageBase64 == "" {
		t.Error("expected inline image data")
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open saved image: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode saved image: %v", err)
	}

	// The square moved from [20,40)x[12,32) to [30,50)x[17,37).
	samples := []struct {
		x, y  int
		white bool
	}{
		{30, 17, true},
		{49, 36, true},
		{25, 20, false},
		{50, 36, false},
		{5, 2, false},
	}
	for _, p := range samples {
		r, _, _, _ := img.At(p.x, p.y).RGBA()
		if (r>>8 == 255) != p.white {
			t.Errorf("pixel (%d,%d): got red %d, want white=%v", p.x, p.y, r>>8, p.white)
		}
	}
}

func TestImageWarpAffine_Errors(t *testing.T) {
	s := New(nil, "")
	path := createSquareFile(t, "square.png")

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"short matrix", map[string]interface{}{"path": path, "matrix": []float64{1, 0, 0}}, "6 elements"},
		{"bad interpolation", map[string]interface{}{"path": path, "matrix": []float64{1, 0, 0, 0, 1, 0}, "interpolation": "cubic"}, "cubic"},
		{"bad edge", map[string]interface{}{"path": path, "matrix": []float64{1, 0, 0, 0, 1, 0}, "edge": "wrap"}, "wrap"},
		{"singular", map[string]interface{}{"path": path, "matrix": []float64{1, 2, 0, 2, 4, 0}}, "determinant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if data := callToolError(t, s, "image_warp_affine", tt.args); !strings.Contains(data, tt.want) {
				t.Errorf("got %q, want it to mention %q", data, tt.want)
			}
		})
	}
}

func TestImageRegister(t *testing.T) {
	s := New(nil, "")
	ref := createTextureFile(t, "ref.png", 10, 10, 96)
	moving := createTextureFile(t, "moving.png", 15, 13, 96)
	out := filepath.Join(t.TempDir(), "aligned.png")

	var result RegisterResult
	callTool(t, s, "image_register", map[string]interface{}{
		"reference":    ref,
		"moving":       moving,
		"return_image": false,
		"output_path":  out,
	}, &result)

	assertMatrix(t, result.Matrix, geometry.Translation(5, 3).Matrix(), 1e-3)
	if result.Inliers < 50 || result.Inliers > result.Matches {
		t.Errorf("inliers: got %d of %d matches", result.Inliers, result.Matches)
	}
	if result.Quality == nil || result.Quality.SimilarityScore < 0.97 {
		t.Errorf("quality: got %+v", result.Quality)
	}
	if result.Aligned == nil {
		t.Fatal("expected aligned image details")
	}
	if result.Aligned.ImageBase64 != "" {
		t.Error("inline image returned with return_image=false")
	}
	if result.Aligned.Width != 96 || result.Aligned.Height != 96 {
		t.Errorf("aligned size: got %dx%d", result.Aligned.Width, result.Aligned.Height)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("aligned image not saved: %v", err)
	}
}

func TestImageRegister_Featureless(t *testing.T) {
	s := New(nil, "")
	flat := writeImage(t, "flat.png", image.NewGray(image.Rect(0, 0, 40, 40)))

	data := callToolError(t, s, "image_register", map[string]interface{}{
		"reference": flat,
		"moving":    flat,
	})
	if data == "" {
		t.Error("expected error data")
	}
}

func TestUnknownTool(t *testing.T) {
	s := New(nil, "")
	if data := callToolError(t, s, "image_rotate", map[string]interface{}{}); !strings.Contains(data, "unknown tool") {
		t.Errorf("got %q", data)
	}
}

func TestToolsCall_InvalidParams(t *testing.T) {
	s := New(nil, "")
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp == nil || resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("Error.Code: got %d, want -32602", resp.Error.Code)
	}
}

func TestToolsCall_BadArguments(t *testing.T) {
	s := New(nil, "")
	params := json.RawMessage(`{"name":"geometry_fit_conic","arguments":{"points":"oops"}}`)
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp == nil || resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("expected a tool error, got %+v", resp)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
