package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pointSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"x": map[string]interface{}{"type": "number"},
		"y": map[string]interface{}{"type": "number"},
	},
	"required": []string{"x", "y"},
}

var detectProperties = map[string]interface{}{
	"threshold": map[string]interface{}{
		"type":        "number",
		"description": "Intensity difference a ring sample must exceed to count as brighter or darker (default 20)",
		"default":     20,
	},
	"min_arc_length": map[string]interface{}{
		"type":        "integer",
		"description": "Contiguous ring samples required for a corner (default 9)",
		"default":     9,
	},
	"ring_radius": map[string]interface{}{
		"type":        "integer",
		"description": "Radius of the sampling ring in pixels (default 3, a 16-sample ring)",
		"default":     3,
	},
	"suppression_radius": map[string]interface{}{
		"type":        "integer",
		"description": "Half-width of the non-maximum suppression window (default 3, -1 disables)",
		"default":     3,
	},
	"max_keypoints": map[string]interface{}{
		"type":        "integer",
		"description": "Keep only the strongest N keypoints (default unlimited)",
	},
	"gray_mode": map[string]interface{}{
		"type":        "string",
		"enum":        []string{"luma", "lightness"},
		"description": "Color to intensity conversion (default luma)",
		"default":     "luma",
	},
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and channel count. The image is cached for subsequent operations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},

		// Feature Operations
		{
			Name:        "features_detect",
			Description: "Detect FAST corner keypoints in an image. Returns pixel positions, scores and orientations, strongest first. Optionally returns the image with keypoints drawn on it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectProperties, map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"annotate": map[string]interface{}{
						"type":        "boolean",
						"description": "Return a base64 PNG with keypoints marked",
						"default":     false,
					},
					"marker_color": map[string]interface{}{
						"type":        "string",
						"description": "Marker color in hex (default #00FF00)",
						"default":     "#00FF00",
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "features_match",
			Description: "Detect and describe keypoints in two images with BRIEF and match moving-image keypoints to reference keypoints with a distance limit and ratio test.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectProperties, map[string]interface{}{
					"reference": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the reference image",
					},
					"moving": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image matched against the reference",
					},
					"max_distance": map[string]interface{}{
						"type":        "number",
						"description": "Matches must have a Hamming distance below this (default 64)",
						"default":     64,
					},
					"ambiguity_ratio": map[string]interface{}{
						"type":        "number",
						"description": "Best to second-best distance ratio must be below this (default 0.8)",
						"default":     0.8,
					},
					"mutual_check": map[string]interface{}{
						"type":        "boolean",
						"description": "Keep only matches that are also best in the reverse direction",
						"default":     false,
					},
					"steered": map[string]interface{}{
						"type":        "boolean",
						"description": "Rotate the BRIEF pattern to each keypoint's orientation",
						"default":     false,
					},
				}),
				"required": []string{"reference", "moving"},
			},
		},

		// Geometry Operations
		{
			Name:        "geometry_fit_conic",
			Description: "Fit a conic Ax²+Bxy+Cy²+Dx+Ey+F=0 to at least 5 points. Returns the coefficients and, when the conic is an ellipse, its centre, semi-axes and rotation. Taubin, renormalization and FNS reduce the bias of plain least squares on noisy points.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"points": map[string]interface{}{
						"type":        "array",
						"items":       pointSchema,
						"description": "Points on the curve",
					},
					"method": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"least_squares", "iterative_reweight", "taubin", "renormalization", "fns"},
						"description": "Estimator (default least_squares)",
						"default":     "least_squares",
					},
				},
				"required": []string{"points"},
			},
		},
		{
			Name:        "geometry_fit_affine",
			Description: "Fit an affine transform mapping source points to destination points (at least 3 pairs). With ransac=true, outlier pairs are rejected first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pairs": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"src": pointSchema,
								"dst": pointSchema,
							},
							"required": []string{"src", "dst"},
						},
						"description": "Corresponding points",
					},
					"ransac": map[string]interface{}{
						"type":        "boolean",
						"description": "Estimate robustly with RANSAC",
						"default":     false,
					},
					"inlier_threshold": map[string]interface{}{
						"type":        "number",
						"description": "RANSAC inlier distance in pixels (default 3)",
						"default":     3,
					},
					"iterations": map[string]interface{}{
						"type":        "integer",
						"description": "RANSAC iterations (default 2000)",
						"default":     2000,
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "RANSAC random seed (default 1)",
						"default":     1,
					},
				},
				"required": []string{"pairs"},
			},
		},
		{
			Name:        "geometry_fit_homography",
			Description: "Fit a projective homography mapping source points to destination points (at least 4 pairs, no three sources collinear). Returns the row-major 3x3 matrix scaled so the last entry is 1.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pairs": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"src": pointSchema,
								"dst": pointSchema,
							},
							"required": []string{"src", "dst"},
						},
						"description": "Corresponding points",
					},
				},
				"required": []string{"pairs"},
			},
		},

		// Resampling Operations
		{
			Name:        "image_warp_affine",
			Description: "Resample an image through an affine transform [a, b, tx, c, d, ty] mapping source to destination pixels. Returns the result as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"matrix": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"minItems":    6,
						"maxItems":    6,
						"description": "Row-major 2x3 matrix: x' = a*x + b*y + tx, y' = c*x + d*y + ty",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Output width (default source width)",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Output height (default source height)",
					},
					"interpolation": map[string]interface{}{
						"type":    "string",
						"enum":    []string{"nearest", "bilinear"},
						"default": "bilinear",
					},
					"edge": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"clamp", "constant", "skip"},
						"description": "How to fill pixels that map outside the source (default constant)",
						"default":     "constant",
					},
					"fill": map[string]interface{}{
						"type":        "number",
						"description": "Fill value for edge=constant (default 0)",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional path to also save the result",
					},
				},
				"required": []string{"path", "matrix"},
			},
		},
		{
			Name:        "image_register",
			Description: "Align a moving image onto a reference image: detect, describe and match features, fit an affine transform with RANSAC and resample the moving image into the reference frame.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectProperties, map[string]interface{}{
					"reference": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the reference image",
					},
					"moving": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image to align",
					},
					"inlier_threshold": map[string]interface{}{
						"type":        "number",
						"description": "RANSAC inlier distance in pixels (default 3)",
						"default":     3,
					},
					"return_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the aligned image as base64 PNG (default true)",
						"default":     true,
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional path to save the aligned image",
					},
				}),
				"required": []string{"reference", "moving"},
			},
		},
	}
}

// merge returns a new map holding the entries of every argument; later
// maps win on duplicate keys.
func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
