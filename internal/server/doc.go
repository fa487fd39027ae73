// Package server implements the MCP (Model Context Protocol) server for
// feature detection and image registration tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the detection,
// descriptor, matching, geometry and warp packages through the MCP protocol,
// so MCP-compatible clients can locate and align images precisely.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//
// Feature Operations:
//   - features_detect: FAST keypoints, optionally drawn onto the image
//   - features_match: BRIEF descriptors matched between two images
//
// Geometry Operations:
//   - geometry_fit_conic: Conic and ellipse parameters by a chosen estimator
//   - geometry_fit_affine: Least-squares or RANSAC affine transform
//   - geometry_fit_homography: Normalised DLT projective transform
//
// Resampling Operations:
//   - image_warp_affine: Resample an image through an affine transform
//   - image_register: Detect, match, fit and resample in one call
//
// # Image Caching
//
// The server maintains an in-memory cache of loaded images. Images are cached
// by path and reused across multiple tool calls, avoiding redundant disk I/O.
// The cache persists for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Logging
//
// Requests and tool failures are logged through the logrus logger passed to
// New. Logs must go to stderr or a file; stdout carries the protocol.
//
// # Usage
//
//	log, _ := logging.New(os.Stderr, "info")
//	srv := server.New(log, version)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
